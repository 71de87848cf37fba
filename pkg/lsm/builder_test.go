package lsm

import "testing"

func newTestVersionSet(t *testing.T) *VersionSet {
	t.Helper()
	storage := newFakeManifestStorage()
	vs := NewVersionSet(t.TempDir(), DefaultOptions(), BytewiseComparator{}, storage, nil)
	return vs
}

func TestVersionBuilder_AppliesAdditions(t *testing.T) {
	vs := newTestVersionSet(t)
	base := vs.current

	var edit VersionEdit
	edit.AddFile(0, 1, 1000, ik("a", 1, TypeValue), ik("c", 1, TypeValue))
	edit.AddFile(0, 2, 1000, ik("d", 2, TypeValue), ik("f", 2, TypeValue))
	edit.AddFile(1, 3, 2000, ik("g", 1, TypeValue), ik("m", 1, TypeValue))

	b := newVersionBuilder(vs, base)
	b.Apply(&edit)

	next := newVersion(vs)
	b.SaveTo(next)
	b.finish()

	if got := next.NumFiles(0); got != 2 {
		t.Fatalf("expected 2 files at level 0, got %d", got)
	}
	if got := next.NumFiles(1); got != 1 {
		t.Fatalf("expected 1 file at level 1, got %d", got)
	}
}

func TestVersionBuilder_DeleteFileRemovesFromNextVersion(t *testing.T) {
	vs := newTestVersionSet(t)

	var addEdit VersionEdit
	addEdit.AddFile(0, 1, 1000, ik("a", 1, TypeValue), ik("c", 1, TypeValue))
	if err := vs.LogAndApply(nil, &addEdit, nil); err != nil {
		t.Fatalf("LogAndApply(add) failed: %v", err)
	}

	base := vs.current

	var deleteEdit VersionEdit
	deleteEdit.DeleteFile(0, 1)

	b := newVersionBuilder(vs, base)
	b.Apply(&deleteEdit)

	next := newVersion(vs)
	b.SaveTo(next)
	b.finish()

	if got := next.NumFiles(0); got != 0 {
		t.Fatalf("expected file to be dropped after DeleteFile, got %d files", got)
	}
}

func TestVersionBuilder_SaveTo_KeepsLevelSortedBySmallest(t *testing.T) {
	vs := newTestVersionSet(t)

	var edit VersionEdit
	// added out of order; level >= 1 requires the builder to sort by Smallest.
	edit.AddFile(1, 3, 1000, ik("m", 1, TypeValue), ik("p", 1, TypeValue))
	edit.AddFile(1, 1, 1000, ik("a", 1, TypeValue), ik("c", 1, TypeValue))
	edit.AddFile(1, 2, 1000, ik("d", 1, TypeValue), ik("f", 1, TypeValue))

	b := newVersionBuilder(vs, vs.current)
	b.Apply(&edit)

	next := newVersion(vs)
	b.SaveTo(next)
	b.finish()

	files := next.Files(1)
	if len(files) != 3 {
		t.Fatalf("expected 3 files at level 1, got %d", len(files))
	}
	for i := 1; i < len(files); i++ {
		if vs.icmp.CompareKeys(files[i-1].Smallest, files[i].Smallest) >= 0 {
			t.Fatalf("level 1 files not sorted by Smallest: %v then %v", files[i-1].Smallest, files[i].Smallest)
		}
	}
}
