package lsm

import (
	"container/heap"

	"lsmdb/pkg/iterator"
	"lsmdb/pkg/types"
)

// twoLevelIterator walks a sorted list of files, lazily opening each
// file's own iterator only when positioned over it, per spec §4/§6's
// "two-level iterator" shape: an outer index over (largest_key ->
// file_number, file_size), an inner iterator over one file's contents.
type twoLevelIterator struct {
	opts  ReadOptions
	cache TableCache
	files []*FileMetaData

	index int // index into files; -1 before First/Seek, len(files) past Last
	inner iterator.Iterator
	err   error
}

func newTwoLevelIterator(opts ReadOptions, cache TableCache, files []*FileMetaData) *twoLevelIterator {
	return &twoLevelIterator{opts: opts, cache: cache, files: files, index: -1}
}

func (it *twoLevelIterator) Err() error { return it.err }

func (it *twoLevelIterator) setInner(idx int) bool {
	if it.inner != nil {
		it.inner.Close()
		it.inner = nil
	}
	if idx < 0 || idx >= len(it.files) {
		it.index = idx
		return false
	}
	f := it.files[idx]
	inner, err := it.cache.NewIterator(it.opts, f.Number, f.FileSize)
	if err != nil {
		it.err = err
		it.index = len(it.files)
		return false
	}
	it.inner = inner
	it.index = idx
	return true
}

func (it *twoLevelIterator) First() {
	if !it.setInner(0) {
		return
	}
	it.inner.First()
	it.skipForward()
}

func (it *twoLevelIterator) Last() {
	if !it.setInner(len(it.files) - 1) {
		return
	}
	it.inner.Last()
	it.skipBackward()
}

func (it *twoLevelIterator) Seek(target types.Key) {
	lo, hi := 0, len(it.files)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytesCompareKey(it.files[mid].Largest.Encode(), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if !it.setInner(lo) {
		return
	}
	it.inner.Seek(target)
	it.skipForward()
}

func bytesCompareKey(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func (it *twoLevelIterator) skipForward() {
	for it.inner == nil || !it.inner.Valid() {
		if !it.setInner(it.index + 1) {
			return
		}
		it.inner.First()
	}
}

func (it *twoLevelIterator) skipBackward() {
	for it.inner == nil || !it.inner.Valid() {
		if !it.setInner(it.index - 1) {
			return
		}
		it.inner.Last()
	}
}

func (it *twoLevelIterator) Next() {
	if it.inner == nil {
		return
	}
	it.inner.Next()
	it.skipForward()
}

func (it *twoLevelIterator) Prev() {
	if it.inner == nil {
		return
	}
	it.inner.Prev()
	it.skipBackward()
}

func (it *twoLevelIterator) Valid() bool {
	return it.inner != nil && it.inner.Valid()
}

func (it *twoLevelIterator) Key() types.Key     { return it.inner.Key() }
func (it *twoLevelIterator) Value() types.Value { return it.inner.Value() }

func (it *twoLevelIterator) Close() error {
	if it.inner != nil {
		return it.inner.Close()
	}
	return nil
}

// mergingIterator presents the N-way merge of several sorted child
// iterators as a single sorted iterator, per spec §4/§6: used both for a
// compaction's input stream and for a read-path snapshot view across
// several SSTables.
type mergingIterator struct {
	cmp      InternalKeyComparator
	children []iterator.Iterator
	h        *mergeHeap
	dir      direction
	current  int
}

type direction int

const (
	dirForward direction = iota
	dirReverse
)

type mergeHeapItem struct {
	idx int
	key []byte
}

type mergeHeap struct {
	cmp   InternalKeyComparator
	items []mergeHeapItem
	max   bool
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	c := h.cmp.Compare(h.items[i].key, h.items[j].key)
	if h.max {
		return c > 0
	}
	return c < 0
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}

// NewMergingIterator builds an N-way merge over children, ordered by cmp.
func NewMergingIterator(cmp InternalKeyComparator, children []iterator.Iterator) iterator.Iterator {
	return &mergingIterator{cmp: cmp, children: children, current: -1}
}

func (it *mergingIterator) rebuild(max bool) {
	it.h = &mergeHeap{cmp: it.cmp, max: max}
	heap.Init(it.h)
	for i, c := range it.children {
		if c.Valid() {
			heap.Push(it.h, mergeHeapItem{idx: i, key: append([]byte(nil), c.Key()...)})
		}
	}
}

func (it *mergingIterator) First() {
	for _, c := range it.children {
		c.First()
	}
	it.dir = dirForward
	it.rebuild(false)
	it.advanceToTop()
}

func (it *mergingIterator) Last() {
	for _, c := range it.children {
		c.Last()
	}
	it.dir = dirReverse
	it.rebuild(true)
	it.advanceToTop()
}

func (it *mergingIterator) Seek(target types.Key) {
	for _, c := range it.children {
		c.Seek(target)
	}
	it.dir = dirForward
	it.rebuild(false)
	it.advanceToTop()
}

func (it *mergingIterator) advanceToTop() {
	if it.h.Len() == 0 {
		it.current = -1
		return
	}
	it.current = it.h.items[0].idx
}

func (it *mergingIterator) Next() {
	if it.current < 0 {
		return
	}
	if it.dir != dirForward {
		// Re-seek every child to the current key then step the current one
		// forward, matching MergingIterator::Next's direction switch.
		key := it.children[it.current].Key()
		for i, c := range it.children {
			if i == it.current {
				continue
			}
			c.Seek(key)
			if c.Valid() && it.cmp.Compare(c.Key(), key) == 0 {
				c.Next()
			}
		}
		it.dir = dirForward
		it.rebuild(false)
		it.advanceToTop()
		return
	}
	top := heap.Pop(it.h).(mergeHeapItem)
	it.children[top.idx].Next()
	if it.children[top.idx].Valid() {
		heap.Push(it.h, mergeHeapItem{idx: top.idx, key: append([]byte(nil), it.children[top.idx].Key()...)})
	}
	it.advanceToTop()
}

func (it *mergingIterator) Prev() {
	if it.current < 0 {
		return
	}
	if it.dir != dirReverse {
		key := it.children[it.current].Key()
		for i, c := range it.children {
			if i == it.current {
				continue
			}
			c.Seek(key)
			if c.Valid() {
				c.Prev()
			} else {
				c.Last()
			}
		}
		it.dir = dirReverse
		it.rebuild(true)
		it.advanceToTop()
		return
	}
	top := heap.Pop(it.h).(mergeHeapItem)
	it.children[top.idx].Prev()
	if it.children[top.idx].Valid() {
		heap.Push(it.h, mergeHeapItem{idx: top.idx, key: append([]byte(nil), it.children[top.idx].Key()...)})
	}
	it.advanceToTop()
}

func (it *mergingIterator) Valid() bool { return it.current >= 0 }

func (it *mergingIterator) Key() types.Key {
	return it.children[it.current].Key()
}

func (it *mergingIterator) Value() types.Value {
	return it.children[it.current].Value()
}

func (it *mergingIterator) Close() error {
	var first error
	for _, c := range it.children {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AddIterators appends iterators covering every file of v to dst, using a
// single two-level iterator for each non-empty level >= 1 (disjoint,
// sorted) and one two-level iterator per level-0 file (since level 0
// files may overlap and must stay individually seekable), per the
// original VersionSet::AddIterators split.
func AddIterators(v *Version, opts ReadOptions, cache TableCache, dst []iterator.Iterator) []iterator.Iterator {
	for _, f := range v.files[0] {
		dst = append(dst, newTwoLevelIterator(opts, cache, []*FileMetaData{f}))
	}
	for level := 1; level < len(v.files); level++ {
		if len(v.files[level]) > 0 {
			dst = append(dst, newTwoLevelIterator(opts, cache, v.files[level]))
		}
	}
	return dst
}

// MakeInputIterator builds the merged iterator a compaction reads its
// input stream from, per spec §4.3.
func MakeInputIterator(c *Compaction, cache TableCache, icmp InternalKeyComparator) iterator.Iterator {
	var children []iterator.Iterator
	for which := 0; which < 2; which++ {
		if len(c.inputs[which]) == 0 {
			continue
		}
		if c.level+which == 0 {
			for _, f := range c.inputs[which] {
				children = append(children, newTwoLevelIterator(ReadOptions{}, cache, []*FileMetaData{f}))
			}
		} else {
			children = append(children, newTwoLevelIterator(ReadOptions{}, cache, c.inputs[which]))
		}
	}
	return NewMergingIterator(icmp, children)
}
