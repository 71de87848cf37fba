package lsm

import (
	"fmt"

	"github.com/zhangyunhao116/skipmap"
)

// bySmallestAndNumber orders two files the way the original's BySmallestKey
// does: primarily by Smallest via the internal key comparator, tie-broken
// by file number so two files can never compare equal.
func bySmallestAndNumber(cmp InternalKeyComparator, a, b *FileMetaData) int {
	if c := cmp.CompareKeys(a.Smallest, b.Smallest); c != 0 {
		return c
	}
	if a.Number < b.Number {
		return -1
	}
	if a.Number > b.Number {
		return 1
	}
	return 0
}

// levelState holds the per-level working set a versionBuilder accumulates:
// files deleted by the edits applied so far, and files added, kept in
// (Smallest, Number) order via a skip map with a custom less-function so
// SaveTo can merge it against the base Version's already-sorted slice in
// one linear pass, exactly like the original's std::set<FileMetaData*,
// BySmallestKey> — the same custom-less pattern pkg/memtable uses for its
// own concurrent sorted set. Keyed by *FileMetaData itself: each Apply
// allocates a fresh FileMetaData per added file, so pointer identity is
// already unique within one builder.
type levelState struct {
	deleted map[uint64]struct{}
	added   *skipmap.FuncMap[*FileMetaData, *FileMetaData]
}

// versionBuilder accumulates a chain of VersionEdits on top of a base
// Version and produces a new Version, per spec §2.3. It exists so
// LogAndApply and Recover can share one merge algorithm instead of
// duplicating the level-file bookkeeping.
type versionBuilder struct {
	vset  *VersionSet
	base  *Version
	cmp   InternalKeyComparator
	level []levelState
}

func newVersionBuilder(vset *VersionSet, base *Version) *versionBuilder {
	b := &versionBuilder{
		vset:  vset,
		base:  base,
		cmp:   vset.icmp,
		level: make([]levelState, vset.opts.NumLevels),
	}
	base.Ref()
	for i := range b.level {
		b.level[i] = levelState{
			deleted: make(map[uint64]struct{}),
			added: skipmap.NewFunc[*FileMetaData, *FileMetaData](func(a, b *FileMetaData) bool {
				return bySmallestAndNumber(vset.icmp, a, b) < 0
			}),
		}
	}
	return b
}

// Apply folds one edit's deletions, additions, and metadata fields into
// the builder's working state, mirroring Builder::Apply.
func (b *versionBuilder) Apply(edit *VersionEdit) {
	for _, cp := range edit.compactPointers {
		b.vset.compactPointer[cp.level] = cp.key
	}

	for key := range edit.deletedFiles {
		b.level[key.level].deleted[key.number] = struct{}{}
	}

	for _, nf := range edit.newFiles {
		f := NewFileMetaData(nf.meta.Number, nf.meta.FileSize, nf.meta.Smallest, nf.meta.Largest)

		delete(b.level[nf.level].deleted, f.Number)
		b.level[nf.level].added.Store(f, f)
	}
}

// MaybeAddFile adds f to level's output slice unless it was deleted by a
// later edit, and asserts the non-overlap invariant for level >= 1 that
// spec §8 invariant 2 and §4.3 require.
func (b *versionBuilder) maybeAddFile(v *Version, level int, f *FileMetaData) {
	if _, deleted := b.level[level].deleted[f.Number]; deleted {
		return
	}
	files := v.files[level]
	if level > 0 && len(files) > 0 {
		prev := files[len(files)-1]
		if b.cmp.CompareKeys(prev.Largest, f.Smallest) >= 0 {
			panic(fmt.Sprintf("lsm: level %d files overlap: %q .. %q vs %q .. %q",
				level, prev.Smallest.UserKey, prev.Largest.UserKey, f.Smallest.UserKey, f.Largest.UserKey))
		}
	}
	f.Ref()
	v.files[level] = append(v.files[level], f)
}

// SaveTo merges the base Version's files with this builder's pending
// deletions and additions into v, per Builder::SaveTo: a linear merge of
// two already-(Smallest,Number)-sorted sequences.
func (b *versionBuilder) SaveTo(v *Version) {
	for level := 0; level < len(b.level); level++ {
		baseFiles := b.base.files[level]
		var addedSorted []*FileMetaData
		b.level[level].added.Range(func(_, f *FileMetaData) bool {
			addedSorted = append(addedSorted, f)
			return true
		})

		i, j := 0, 0
		for i < len(baseFiles) && j < len(addedSorted) {
			if bySmallestAndNumber(b.cmp, baseFiles[i], addedSorted[j]) < 0 {
				b.maybeAddFile(v, level, baseFiles[i])
				i++
			} else {
				b.maybeAddFile(v, level, addedSorted[j])
				j++
			}
		}
		for ; i < len(baseFiles); i++ {
			b.maybeAddFile(v, level, baseFiles[i])
		}
		for ; j < len(addedSorted); j++ {
			b.maybeAddFile(v, level, addedSorted[j])
		}
	}
}

// finish releases the base Version reference the builder took; callers
// must call this exactly once after SaveTo, under the VersionSet mutex.
func (b *versionBuilder) finish() {
	b.base.Unref()
}
