package lsm

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// GetStats records which file, if any, should be charged a wasted seek for
// a completed Get call, per spec §4.1's "seek accounting" rule: at most
// one file is charged per call, and it is the first file probed, not the
// one that finally answered.
type GetStats struct {
	SeekFile      *FileMetaData
	SeekFileLevel int
}

// Version is an immutable snapshot of the level -> files mapping, plus the
// mutable scheduling hints spec §3 documents as living on it (compaction
// score/level, seek-triggered candidate). The file lists themselves are
// never mutated after the Version is built; only the hint fields below
// and the embedded FileMetaData refcounts change over a Version's life.
type Version struct {
	vset *VersionSet
	cmp  InternalKeyComparator

	files [][]*FileMetaData // len == vset.opts.NumLevels

	// doubly-linked list membership, owned by VersionSet under its mutex.
	prev, next *Version
	refs       atomic.Int32

	// Finalize()-computed scheduling hints.
	compactionLevel int
	compactionScore float64

	// Seek-triggered candidate, set at most once by the first Get whose
	// last-probed file's allowed_seeks reaches zero.
	fileToCompact      atomic.Pointer[FileMetaData]
	fileToCompactLevel atomic.Int32
}

func newVersion(vset *VersionSet) *Version {
	v := &Version{
		vset:  vset,
		cmp:   vset.icmp,
		files: make([][]*FileMetaData, vset.opts.NumLevels),
	}
	v.compactionLevel = -1
	v.compactionScore = -1
	return v
}

// Ref increments the Version's reference count; callers that intend to
// hold a reference across a read or iterator lifetime call this while
// holding VersionSet's mutex (see spec §5).
func (v *Version) Ref() { v.refs.Add(1) }

// Unref decrements the reference count and, if it reaches zero, unlinks
// the Version from VersionSet's live list and drops its file references.
// Must be called with VersionSet's mutex held, matching spec §5's
// "refs is maintained only while mu is held" rule.
func (v *Version) Unref() {
	if v == &v.vset.dummyVersions {
		panic("lsm: Unref on sentinel version")
	}
	n := v.refs.Add(-1)
	if n < 0 {
		panic("lsm: Version refs went negative")
	}
	if n == 0 {
		v.prev.next = v.next
		v.next.prev = v.prev
		for _, level := range v.files {
			for _, f := range level {
				f.Unref()
			}
		}
	}
}

// NumFiles returns the number of files at level.
func (v *Version) NumFiles(level int) int { return len(v.files[level]) }

// Files returns the file list at level; callers must not mutate it.
func (v *Version) Files(level int) []*FileMetaData { return v.files[level] }

func (v *Version) CompactionScore() (level int, score float64) {
	return v.compactionLevel, v.compactionScore
}

func (v *Version) FileToCompact() (*FileMetaData, int) {
	f := v.fileToCompact.Load()
	if f == nil {
		return nil, -1
	}
	return f, int(v.fileToCompactLevel.Load())
}

// FindFile returns the smallest index i such that files[i].Largest >=
// ikey (by the internal key comparator), or len(files) if none, per spec
// §8 invariant 5. files must be sorted by Smallest as level>=1 requires.
func FindFile(cmp InternalKeyComparator, files []*FileMetaData, ikey []byte) int {
	lo, hi := 0, len(files)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Compare(files[mid].Largest.Encode(), ikey) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func afterFile(ucmp Comparator, userKey []byte, f *FileMetaData) bool {
	return userKey != nil && ucmp.Compare(userKey, f.Largest.UserKey) > 0
}

func beforeFile(ucmp Comparator, userKey []byte, f *FileMetaData) bool {
	return userKey != nil && ucmp.Compare(userKey, f.Smallest.UserKey) < 0
}

// someFileOverlapsRange implements SomeFileOverlapsRange from the
// original: a linear scan when files may overlap each other (level 0), or
// a binary search when they are disjoint and sorted (level >= 1).
func someFileOverlapsRange(cmp InternalKeyComparator, disjointSorted bool, files []*FileMetaData, smallestUser, largestUser []byte) bool {
	ucmp := cmp.User()
	if !disjointSorted {
		for _, f := range files {
			if !(afterFile(ucmp, smallestUser, f) || beforeFile(ucmp, largestUser, f)) {
				return true
			}
		}
		return false
	}

	index := 0
	if smallestUser != nil {
		small := MaxInternalKey(smallestUser)
		index = FindFile(cmp, files, small.Encode())
	}
	if index >= len(files) {
		return false
	}
	return !beforeFile(ucmp, largestUser, files[index])
}

// OverlapInLevel reports whether some file in level overlaps
// [smallestUser, largestUser] (either bound nil = unbounded), per spec
// §4.2. Level 0 may hold overlapping files and is scanned linearly;
// level >= 1 is disjoint and sorted, so a binary search suffices.
func (v *Version) OverlapInLevel(level int, smallestUser, largestUser []byte) bool {
	return someFileOverlapsRange(v.cmp, level > 0, v.files[level], smallestUser, largestUser)
}

// PickLevelForMemTableOutput chooses where a freshly flushed memtable
// should land, per spec §4.2: level 0 by default, pushed down while it is
// safe and doesn't risk an expensive future grandparent rewrite.
func (v *Version) PickLevelForMemTableOutput(smallestUser, largestUser []byte) int {
	level := 0
	if v.OverlapInLevel(0, smallestUser, largestUser) {
		return level
	}

	start := MaxInternalKey(smallestUser)
	limit := MinInternalKey(largestUser)
	for level < v.vset.opts.MaxMemCompactLevel {
		if v.OverlapInLevel(level+1, smallestUser, largestUser) {
			break
		}
		if level+2 < len(v.files) {
			overlaps := v.GetOverlappingInputs(level+2, &start, &limit)
			if totalFileSize(overlaps) > v.vset.opts.MaxGrandParentOverlapBytes {
				break
			}
		}
		level++
	}
	return level
}

// GetOverlappingInputs returns every file in level whose user-key range
// intersects [begin, end] (either bound may be nil = unbounded). For
// level 0, a file that widens the query window triggers a restart from
// the beginning, so the result is transitively overlap-closed (spec §4.2,
// §8 invariant 6).
func (v *Version) GetOverlappingInputs(level int, begin, end *InternalKey) []*FileMetaData {
	var userBegin, userEnd []byte
	if begin != nil {
		userBegin = begin.UserKey
	}
	if end != nil {
		userEnd = end.UserKey
	}
	ucmp := v.cmp.User()

	var out []*FileMetaData
	files := v.files[level]
	for i := 0; i < len(files); i++ {
		f := files[i]
		fileStart, fileLimit := f.Smallest.UserKey, f.Largest.UserKey
		switch {
		case begin != nil && ucmp.Compare(fileLimit, userBegin) < 0:
			// f ends before the range starts; skip.
		case end != nil && ucmp.Compare(fileStart, userEnd) > 0:
			// f starts after the range ends; skip.
		default:
			out = append(out, f)
			if level == 0 {
				if begin != nil && ucmp.Compare(fileStart, userBegin) < 0 {
					userBegin = fileStart
					out = out[:0]
					i = -1
				} else if end != nil && ucmp.Compare(fileLimit, userEnd) > 0 {
					userEnd = fileLimit
					out = out[:0]
					i = -1
				}
			}
		}
	}
	return out
}

// Get performs the level-by-level point lookup of spec §4.1, charging the
// first probed file of a multi-file lookup with a wasted seek per the
// documented (and intentionally approximate) accounting rule.
func (v *Version) Get(opts ReadOptions, lk LookupKey, cache TableCache) (value []byte, found bool, stats GetStats, err error) {
	ukey := lk.UserKey()
	ikey := lk.InternalKeyEncoded()
	ucmp := v.cmp.User()

	stats.SeekFileLevel = -1
	var lastFileRead *FileMetaData
	lastFileReadLevel := -1

	const (
		resNotFound = iota
		resFound
		resDeleted
		resCorrupt
	)

	for level := 0; level < len(v.files); level++ {
		files := v.files[level]
		if len(files) == 0 {
			continue
		}

		var candidates []*FileMetaData
		if level == 0 {
			for _, f := range files {
				if ucmp.Compare(ukey, f.Smallest.UserKey) >= 0 && ucmp.Compare(ukey, f.Largest.UserKey) <= 0 {
					candidates = append(candidates, f)
				}
			}
			if len(candidates) == 0 {
				continue
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i].Number > candidates[j].Number })
		} else {
			idx := FindFile(v.cmp, files, ikey)
			if idx >= len(files) {
				continue
			}
			f := files[idx]
			if ucmp.Compare(ukey, f.Smallest.UserKey) < 0 {
				continue
			}
			candidates = []*FileMetaData{f}
		}

		for _, f := range candidates {
			if lastFileRead != nil && stats.SeekFile == nil {
				stats.SeekFile = lastFileRead
				stats.SeekFileLevel = lastFileReadLevel
			}
			lastFileRead = f
			lastFileReadLevel = level

			result := resNotFound
			var val []byte
			cbErr := cache.Get(opts, f.Number, f.FileSize, ikey, func(foundIKey, foundValue []byte) {
				pk, perr := ParseInternalKey(foundIKey)
				if perr != nil {
					result = resCorrupt
					return
				}
				if ucmp.Compare(pk.UserKey, ukey) == 0 {
					if pk.Type == TypeValue {
						result = resFound
						val = append([]byte(nil), foundValue...)
					} else {
						result = resDeleted
					}
				}
			})
			if cbErr != nil {
				return nil, false, stats, fmt.Errorf("%w: table cache get: %v", ErrIOError, cbErr)
			}

			switch result {
			case resNotFound:
				continue
			case resFound:
				return val, true, stats, nil
			case resDeleted:
				return nil, false, stats, nil
			case resCorrupt:
				return nil, false, stats, fmt.Errorf("%w: corrupt internal key in file %d", ErrCorruption, f.Number)
			}
		}
	}

	return nil, false, stats, nil
}

// UpdateStats applies the seek charge a Get call recorded, per spec §4.1.
// It returns true the first time a file's allowed_seeks reaches zero,
// signalling the background scheduler to wake and plan a seek-triggered
// compaction; later candidates are ignored until this one is consumed.
func (v *Version) UpdateStats(stats GetStats) bool {
	f := stats.SeekFile
	if f == nil {
		return false
	}
	reachedZero := f.ChargeSeek()
	if !reachedZero {
		return false
	}
	if v.fileToCompact.CompareAndSwap(nil, f) {
		v.fileToCompactLevel.Store(int32(stats.SeekFileLevel))
		return true
	}
	return false
}

// String renders a DebugString-style dump of every level's files, grounded
// on the original's Version::DebugString but exposed as Go's Stringer.
func (v *Version) String() string {
	s := ""
	for level, files := range v.files {
		s += fmt.Sprintf("--- level %d ---\n", level)
		for _, f := range files {
			s += fmt.Sprintf(" %d:%d[%q .. %q]\n", f.Number, f.FileSize, f.Smallest.UserKey, f.Largest.UserKey)
		}
	}
	return s
}
