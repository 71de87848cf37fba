package lsm

import "bytes"

// Comparator orders user keys. lsmdb ships a single bytewise comparator;
// the interface exists so a future keyspace (e.g. case-insensitive) can
// plug in without touching the version/compaction core.
type Comparator interface {
	Name() string
	Compare(a, b []byte) int
}

// BytewiseComparator orders user keys by raw byte value, ascending.
type BytewiseComparator struct{}

func (BytewiseComparator) Name() string { return "lsmdb.BytewiseComparator" }

func (BytewiseComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// InternalKeyComparator orders internal keys: user key ascending, then the
// (sequence, type) suffix descending so the newest version of a user key
// sorts first among equal user keys.
type InternalKeyComparator struct {
	user Comparator
}

func NewInternalKeyComparator(user Comparator) InternalKeyComparator {
	return InternalKeyComparator{user: user}
}

func (c InternalKeyComparator) Name() string { return "lsmdb.InternalKeyComparator" }

func (c InternalKeyComparator) User() Comparator { return c.user }

// Compare orders two encoded internal keys per the rule in spec §3.
func (c InternalKeyComparator) Compare(a, b []byte) int {
	ua, sa, ta := splitInternalKey(a)
	ub, sb, tb := splitInternalKey(b)

	if r := c.user.Compare(ua, ub); r != 0 {
		return r
	}
	// Newer sequence numbers sort first; ties broken by type, also descending.
	if sa != sb {
		if sa > sb {
			return -1
		}
		return 1
	}
	if ta != tb {
		if ta > tb {
			return -1
		}
		return 1
	}
	return 0
}

// CompareKeys compares two parsed InternalKey values without re-encoding.
func (c InternalKeyComparator) CompareKeys(a, b InternalKey) int {
	if r := c.user.Compare(a.UserKey, b.UserKey); r != 0 {
		return r
	}
	if a.Seq != b.Seq {
		if a.Seq > b.Seq {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type > b.Type {
			return -1
		}
		return 1
	}
	return 0
}
