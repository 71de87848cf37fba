package lsm

import (
	"encoding/binary"
	"fmt"
)

// ValueType tags the kind of entry an internal key refers to, per spec §3.
type ValueType uint8

const (
	// TypeDeletion marks a tombstone.
	TypeDeletion ValueType = 0
	// TypeValue marks a live value.
	TypeValue ValueType = 1

	// valueTypeForSeek is the sentinel used to build the maximal internal
	// key for a given user key: a lookup for "user_key" should find any
	// entry, regardless of its real type, so we seek using the highest
	// type tag, which sorts first among entries with the same sequence.
	valueTypeForSeek ValueType = TypeValue
)

const (
	// MaxSequenceNumber is the largest representable sequence number; it
	// is reserved as part of the "seek" sentinel internal key.
	MaxSequenceNumber uint64 = (uint64(1) << 56) - 1

	internalKeySuffixLen = 8
)

// InternalKey is the decoded form of user_key ‖ (sequence<<8 | type).
type InternalKey struct {
	UserKey []byte
	Seq     uint64
	Type    ValueType
}

// MaxInternalKey returns the maximal internal key for userKey: it sorts
// before any real entry for userKey. Used to seek "at or past" a user key.
func MaxInternalKey(userKey []byte) InternalKey {
	return InternalKey{UserKey: userKey, Seq: MaxSequenceNumber, Type: valueTypeForSeek}
}

// MinInternalKey returns the minimal internal key for userKey.
func MinInternalKey(userKey []byte) InternalKey {
	return InternalKey{UserKey: userKey, Seq: 0, Type: TypeDeletion}
}

// Encode serializes the internal key as user_key ‖ suffix(8 bytes).
func (k InternalKey) Encode() []byte {
	buf := make([]byte, len(k.UserKey)+internalKeySuffixLen)
	copy(buf, k.UserKey)
	binary.LittleEndian.PutUint64(buf[len(k.UserKey):], packSuffix(k.Seq, k.Type))
	return buf
}

// UserKeyOf extracts the user key portion of an encoded internal key.
func UserKeyOf(encoded []byte) []byte {
	uk, _, _ := splitInternalKey(encoded)
	return uk
}

// ParseInternalKey decodes an encoded internal key, returning an error if
// it is too short to contain the suffix (a Corruption in spec §7 terms).
func ParseInternalKey(encoded []byte) (InternalKey, error) {
	if len(encoded) < internalKeySuffixLen {
		return InternalKey{}, fmt.Errorf("%w: internal key too short (%d bytes)", ErrCorruption, len(encoded))
	}
	uk, seq, typ := splitInternalKey(encoded)
	return InternalKey{UserKey: uk, Seq: seq, Type: typ}, nil
}

func packSuffix(seq uint64, typ ValueType) uint64 {
	return seq<<8 | uint64(typ)
}

func unpackSuffix(suffix uint64) (seq uint64, typ ValueType) {
	return suffix >> 8, ValueType(suffix & 0xff)
}

func splitInternalKey(encoded []byte) (userKey []byte, seq uint64, typ ValueType) {
	if len(encoded) < internalKeySuffixLen {
		return encoded, 0, TypeDeletion
	}
	n := len(encoded) - internalKeySuffixLen
	suffix := binary.LittleEndian.Uint64(encoded[n:])
	seq, typ = unpackSuffix(suffix)
	return encoded[:n], seq, typ
}

// LookupKey bundles the encoded internal key and the extracted user key for
// a single point lookup, avoiding re-deriving the user key at every level.
type LookupKey struct {
	ikey []byte
	ukey []byte
}

// NewLookupKey builds a lookup key for userKey at the given read sequence:
// the encoded form seeks to the newest entry with seq <= readSeq.
func NewLookupKey(userKey []byte, readSeq uint64) LookupKey {
	ik := InternalKey{UserKey: userKey, Seq: readSeq, Type: valueTypeForSeek}
	return LookupKey{ikey: ik.Encode(), ukey: userKey}
}

func (lk LookupKey) InternalKeyEncoded() []byte { return lk.ikey }
func (lk LookupKey) UserKey() []byte            { return lk.ukey }
