package store

import (
	"testing"

	"lsmdb/pkg/config"
	"lsmdb/pkg/wal"
)

// newStoreAt builds a Store rooted at dir, registering cleanup for the
// WAL and the store itself.
func newStoreAt(t testing.TB, dir string) *Store {
	t.Helper()

	cfg := config.Default()
	cfg.Persistence.RootPath = dir

	journal, err := wal.New(dir)
	if err != nil {
		t.Fatalf("failed to create WAL: %v", err)
	}
	t.Cleanup(func() {
		if err := journal.Close(); err != nil {
			t.Logf("failed to close WAL: %v", err)
		}
	})

	s, err := New(&cfg, journal)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(s.Close)

	return s
}
