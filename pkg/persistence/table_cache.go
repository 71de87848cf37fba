package persistence

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"lsmdb/pkg/iterator"
	"lsmdb/pkg/lsm"
	"lsmdb/pkg/types"
)

// valueTypeFromMeta derives the lsm.ValueType an SSTable entry's Meta
// field implies, without pkg/persistence depending on pkg/store's MD
// encoding: by convention the low byte of Meta is 0 for a live value and
// 1 for a tombstone, matching the operation held in store.MD's low byte.
func valueTypeFromMeta(meta uint64) lsm.ValueType {
	if meta&0xff == 1 {
		return lsm.TypeDeletion
	}
	return lsm.TypeValue
}

func metaForValueType(t lsm.ValueType) uint64 {
	if t == lsm.TypeDeletion {
		return 1
	}
	return 0
}

// sstableEntry is one (internal key, value) pair read out of an SSTable
// file, cached in sorted order so the adapter below can binary-search
// instead of rescanning the file on every Seek.
type sstableEntry struct {
	ikey  []byte
	value []byte
}

// TableCache opens SSTable files by number through a Manifest-provided
// path lookup and serves both point lookups and iteration, implementing
// lsm.TableCache. lsmdb keeps this cache intentionally simple: an LRU
// over decoded file contents rather than leveldb's open-file-handle
// cache, since pkg/persistence's SSTable format is small enough to
// decode wholesale.
type TableCache struct {
	mu       sync.Mutex
	manifest *Manifest
	cache    map[uint64][]sstableEntry
	capacity int
	order    []uint64
}

// NewTableCache builds a TableCache that resolves file numbers to paths
// through manifest and keeps up to capacity decoded files in memory.
func NewTableCache(manifest *Manifest, capacity int) *TableCache {
	if capacity <= 0 {
		capacity = 32
	}
	return &TableCache{
		manifest: manifest,
		cache:    make(map[uint64][]sstableEntry),
		capacity: capacity,
	}
}

func (tc *TableCache) load(fileNumber uint64) ([]sstableEntry, error) {
	tc.mu.Lock()
	if entries, ok := tc.cache[fileNumber]; ok {
		for i, n := range tc.order {
			if n == fileNumber {
				tc.order = append(tc.order[:i], tc.order[i+1:]...)
				tc.order = append(tc.order, fileNumber)
				break
			}
		}
		tc.mu.Unlock()
		return entries, nil
	}
	tc.mu.Unlock()

	path, ok := tc.manifest.pathFor(fileNumber)
	if !ok {
		return nil, fmt.Errorf("%w: no path registered for file %d", lsm.ErrNotFound, fileNumber)
	}

	table := NewSSTable(path, nil, nil)
	if err := table.Open(); err != nil {
		return nil, fmt.Errorf("open sstable %d: %w", fileNumber, err)
	}
	defer table.Close()

	var entries []sstableEntry
	it := table.Iterator()
	for it.First(); it.Valid(); it.Next() {
		ik := lsm.InternalKey{UserKey: append([]byte(nil), it.Key()...), Seq: it.ID(), Type: valueTypeFromMeta(it.Meta())}
		entries = append(entries, sstableEntry{ikey: ik.Encode(), value: append([]byte(nil), it.Value()...)})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].ikey, entries[j].ikey) < 0 })

	tc.mu.Lock()
	tc.cache[fileNumber] = entries
	tc.order = append(tc.order, fileNumber)
	for len(tc.order) > tc.capacity {
		evict := tc.order[0]
		tc.order = tc.order[1:]
		delete(tc.cache, evict)
	}
	tc.mu.Unlock()

	return entries, nil
}

// Get implements lsm.TableCache.
func (tc *TableCache) Get(opts lsm.ReadOptions, fileNumber, fileSize uint64, ikey []byte, saver lsm.GetSaver) error {
	entries, err := tc.load(fileNumber)
	if err != nil {
		return err
	}
	idx := sort.Search(len(entries), func(i int) bool { return bytes.Compare(entries[i].ikey, ikey) >= 0 })
	if idx < len(entries) {
		saver(entries[idx].ikey, entries[idx].value)
	}
	return nil
}

// NewIterator implements lsm.TableCache.
func (tc *TableCache) NewIterator(opts lsm.ReadOptions, fileNumber, fileSize uint64) (iterator.Iterator, error) {
	entries, err := tc.load(fileNumber)
	if err != nil {
		return nil, err
	}
	return &sstableCacheIterator{entries: entries, pos: -1}, nil
}

// sstableCacheIterator walks a decoded, sorted SSTable entry slice; it
// implements pkg/iterator.Iterator over the file's internal keys.
type sstableCacheIterator struct {
	entries []sstableEntry
	pos     int
}

func (it *sstableCacheIterator) First() { it.pos = 0 }
func (it *sstableCacheIterator) Last()  { it.pos = len(it.entries) - 1 }

func (it *sstableCacheIterator) Seek(target types.Key) {
	it.pos = sort.Search(len(it.entries), func(i int) bool { return bytes.Compare(it.entries[i].ikey, target) >= 0 })
}

func (it *sstableCacheIterator) Next() {
	if it.pos < len(it.entries) {
		it.pos++
	}
}

func (it *sstableCacheIterator) Prev() {
	if it.pos >= 0 {
		it.pos--
	}
}

func (it *sstableCacheIterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.entries)
}

func (it *sstableCacheIterator) Key() types.Key     { return it.entries[it.pos].ikey }
func (it *sstableCacheIterator) Value() types.Value { return it.entries[it.pos].value }
func (it *sstableCacheIterator) Close() error       { return nil }
