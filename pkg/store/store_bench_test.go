package store

import (
	"fmt"
	"math/rand"
	"testing"
)

func BenchmarkStoreWrite(b *testing.B) {
	store := newStoreAt(b, b.TempDir())

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := store.PutString(fmt.Sprintf("key-%d", i), "value-"+fmt.Sprint(i)); err != nil {
			b.Fatalf("PutString failed: %v", err)
		}
	}
}

func BenchmarkStoreRead(b *testing.B) {
	store := newStoreAt(b, b.TempDir())

	const preloaded = 10_000
	for i := 0; i < preloaded; i++ {
		if err := store.PutString(fmt.Sprintf("key-%d", i), "value-"+fmt.Sprint(i)); err != nil {
			b.Fatalf("PutString failed: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	rng := rand.New(rand.NewSource(42))

	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", rng.Intn(preloaded))
		if _, found, err := store.GetString(key); err != nil || !found {
			b.Fatalf("GetString failed: %v (found=%v)", err, found)
		}
	}
}
