package lsm

import "testing"

func TestVersionSet_LogAndApply_InstallsNewCurrent(t *testing.T) {
	vs := newTestVersionSet(t)

	var edit VersionEdit
	edit.AddFile(0, 1, 1000, ik("a", 1, TypeValue), ik("m", 1, TypeValue))
	edit.SetLastSequence(42)

	if err := vs.LogAndApply(nil, &edit, nil); err != nil {
		t.Fatalf("LogAndApply failed: %v", err)
	}

	if got := vs.NumLevelFiles(0); got != 1 {
		t.Fatalf("NumLevelFiles(0) = %d, want 1", got)
	}
	if got := vs.LastSequence(); got != 42 {
		t.Fatalf("LastSequence() = %d, want 42", got)
	}
}

func TestVersionSet_LogAndApply_PersistsToManifest(t *testing.T) {
	storage := newFakeManifestStorage()
	vs := NewVersionSet(t.TempDir(), DefaultOptions(), BytewiseComparator{}, storage, nil)

	var edit VersionEdit
	edit.AddFile(0, 1, 1000, ik("a", 1, TypeValue), ik("m", 1, TypeValue))
	if err := vs.LogAndApply(nil, &edit, nil); err != nil {
		t.Fatalf("LogAndApply failed: %v", err)
	}

	if len(storage.files) == 0 {
		t.Fatal("expected LogAndApply to write a manifest file")
	}
	current, err := storage.ReadCurrent(vs.dir)
	if err != nil {
		t.Fatalf("ReadCurrent failed: %v", err)
	}
	if current != vs.ManifestFileNumber() {
		t.Fatalf("CURRENT points at manifest %d, want %d", current, vs.ManifestFileNumber())
	}
}

func TestVersionSet_Recover_RebuildsStateFromManifest(t *testing.T) {
	storage := newFakeManifestStorage()
	dir := t.TempDir()
	vs := NewVersionSet(dir, DefaultOptions(), BytewiseComparator{}, storage, nil)

	var edit1 VersionEdit
	edit1.AddFile(0, 1, 1000, ik("a", 1, TypeValue), ik("m", 1, TypeValue))
	if err := vs.LogAndApply(nil, &edit1, nil); err != nil {
		t.Fatalf("LogAndApply(edit1) failed: %v", err)
	}

	var edit2 VersionEdit
	edit2.AddFile(0, 2, 1000, ik("n", 1, TypeValue), ik("z", 1, TypeValue))
	edit2.SetLastSequence(100)
	if err := vs.LogAndApply(nil, &edit2, nil); err != nil {
		t.Fatalf("LogAndApply(edit2) failed: %v", err)
	}

	recovered := NewVersionSet(dir, DefaultOptions(), BytewiseComparator{}, storage, nil)
	if err := recovered.Recover(); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if got := recovered.NumLevelFiles(0); got != 2 {
		t.Fatalf("after recover, NumLevelFiles(0) = %d, want 2", got)
	}
	if got := recovered.LastSequence(); got != 100 {
		t.Fatalf("after recover, LastSequence() = %d, want 100", got)
	}
}

func TestVersionSet_Finalize_ScoresLevel0ByFileCount(t *testing.T) {
	vs := newTestVersionSet(t)
	v := newVersion(vs)
	for i := 0; i < vs.opts.L0CompactionTrigger+2; i++ {
		v.files[0] = append(v.files[0], meta(uint64(i+1), 1000, "a", "z", 1))
	}

	vs.Finalize(v)

	level, score := v.CompactionScore()
	if level != 0 {
		t.Fatalf("expected level 0 to need compaction most, got level %d", level)
	}
	if score <= 1.0 {
		t.Fatalf("expected score above 1.0 once the L0 trigger is exceeded, got %f", score)
	}
}

func TestVersionSet_AddLiveFiles_CollectsAcrossAllLiveVersions(t *testing.T) {
	vs := newTestVersionSet(t)

	var edit VersionEdit
	edit.AddFile(0, 1, 1000, ik("a", 1, TypeValue), ik("m", 1, TypeValue))
	if err := vs.LogAndApply(nil, &edit, nil); err != nil {
		t.Fatalf("LogAndApply failed: %v", err)
	}

	// Hold a reference to the old version so both it and the new current
	// version are live simultaneously, exercising the walk over every
	// version in the doubly-linked list rather than just vs.current.
	old := vs.dummyVersions.next
	old.Ref()
	defer old.Unref()

	var edit2 VersionEdit
	edit2.AddFile(0, 2, 1000, ik("n", 1, TypeValue), ik("z", 1, TypeValue))
	if err := vs.LogAndApply(nil, &edit2, nil); err != nil {
		t.Fatalf("LogAndApply failed: %v", err)
	}

	live := vs.AddLiveFiles()
	if !live.Contains(1) || !live.Contains(2) {
		t.Fatalf("expected both file 1 and 2 to be live")
	}
}

func TestVersionSet_ApproximateOffsetOf(t *testing.T) {
	vs := newTestVersionSet(t)
	v := newVersion(vs)
	v.files[0] = []*FileMetaData{
		meta(1, 1000, "a", "d", 1),
		meta(2, 1000, "e", "h", 1),
	}

	offset := vs.ApproximateOffsetOf(v, 0, ik("z", 1, TypeValue))
	if offset != 2000 {
		t.Fatalf("ApproximateOffsetOf past every file = %d, want 2000", offset)
	}

	offset = vs.ApproximateOffsetOf(v, 0, ik("0", 1, TypeValue))
	if offset != 0 {
		t.Fatalf("ApproximateOffsetOf before every file = %d, want 0", offset)
	}
}
