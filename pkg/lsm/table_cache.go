package lsm

import "lsmdb/pkg/iterator"

// ReadOptions mirrors the handful of knobs the original read path threads
// through to the table cache; lsmdb only needs checksum verification and
// cache-fill control today.
type ReadOptions struct {
	VerifyChecksums bool
	FillCache       bool
}

// GetSaver receives the raw (internal key, value) pair the table cache
// found for a probe; Version.Get parses the internal key itself and
// decides found/deleted/corrupt, matching spec §4.1's "callback receives
// the raw (ikey, value)" contract.
type GetSaver func(ikey, value []byte)

// TableCache is the capability spec §1/§6 calls "opaque: open this table
// and search for key" — implemented outside this package by
// pkg/persistence against the real SSTable format and block cache.
type TableCache interface {
	NewIterator(opts ReadOptions, fileNumber, fileSize uint64) (iterator.Iterator, error)
	Get(opts ReadOptions, fileNumber, fileSize uint64, ikey []byte, saver GetSaver) error
}
