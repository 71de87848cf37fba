package lsm

import (
	"bytes"
	"errors"
	"testing"
)

func TestInternalKey_EncodeParseRoundTrip(t *testing.T) {
	original := ik(randomWord(), 42, TypeValue)

	decoded, err := ParseInternalKey(original.Encode())
	if err != nil {
		t.Fatalf("ParseInternalKey failed: %v", err)
	}

	if !bytes.Equal(decoded.UserKey, original.UserKey) {
		t.Errorf("UserKey mismatch: got %q, want %q", decoded.UserKey, original.UserKey)
	}
	if decoded.Seq != original.Seq {
		t.Errorf("Seq mismatch: got %d, want %d", decoded.Seq, original.Seq)
	}
	if decoded.Type != original.Type {
		t.Errorf("Type mismatch: got %v, want %v", decoded.Type, original.Type)
	}
}

func TestParseInternalKey_TooShort(t *testing.T) {
	_, err := ParseInternalKey([]byte("short"))
	if !errors.Is(err, ErrCorruption) {
		t.Fatalf("expected ErrCorruption, got %v", err)
	}
}

func TestUserKeyOf(t *testing.T) {
	encoded := ik("hello", 1, TypeValue).Encode()
	if got := UserKeyOf(encoded); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("UserKeyOf = %q, want %q", got, "hello")
	}
}

func TestMaxAndMinInternalKey_BoundOrdering(t *testing.T) {
	icmp := NewInternalKeyComparator(BytewiseComparator{})

	min := MinInternalKey([]byte("key"))
	max := MaxInternalKey([]byte("key"))
	mid := ik("key", 5, TypeValue)

	if icmp.CompareKeys(max, mid) >= 0 {
		t.Fatal("MaxInternalKey should sort before any real entry for the same user key")
	}
	if icmp.CompareKeys(mid, min) >= 0 {
		t.Fatal("any real entry should sort before MinInternalKey for the same user key")
	}
}

func TestNewLookupKey(t *testing.T) {
	lk := NewLookupKey([]byte("foo"), 99)

	if !bytes.Equal(lk.UserKey(), []byte("foo")) {
		t.Fatalf("UserKey() = %q, want %q", lk.UserKey(), "foo")
	}

	decoded, err := ParseInternalKey(lk.InternalKeyEncoded())
	if err != nil {
		t.Fatalf("ParseInternalKey failed: %v", err)
	}
	if decoded.Seq != 99 {
		t.Fatalf("expected lookup key to encode seq 99, got %d", decoded.Seq)
	}
}
