package lsm

import "testing"

func TestVersion_Get_FindsValueAcrossLevels(t *testing.T) {
	vs := newTestVersionSet(t)
	cache := newFakeTableCache()

	f0 := meta(1, 4096, "a", "m", 1)
	f1 := meta(2, 4096, "n", "z", 1)
	cache.put(f1.Number, ik("target", 1, TypeValue), []byte("value-from-level1"))

	var edit VersionEdit
	edit.AddFile(0, f0.Number, f0.FileSize, f0.Smallest, f0.Largest)
	edit.AddFile(1, f1.Number, f1.FileSize, f1.Smallest, f1.Largest)
	if err := vs.LogAndApply(nil, &edit, nil); err != nil {
		t.Fatalf("LogAndApply failed: %v", err)
	}

	v := vs.Current()
	defer v.Unref()

	lk := NewLookupKey([]byte("target"), MaxSequenceNumber)
	value, found, _, err := v.Get(ReadOptions{}, lk, cache)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected to find target")
	}
	if string(value) != "value-from-level1" {
		t.Fatalf("Get value = %q, want %q", value, "value-from-level1")
	}
}

func TestVersion_Get_DeletedKeyNotFound(t *testing.T) {
	vs := newTestVersionSet(t)
	cache := newFakeTableCache()

	f0 := meta(1, 4096, "a", "z", 5)
	cache.tables[f0.Number] = map[string][]byte{
		string(ik("gone", 5, TypeDeletion).Encode()): nil,
	}

	var edit VersionEdit
	edit.AddFile(0, f0.Number, f0.FileSize, f0.Smallest, f0.Largest)
	if err := vs.LogAndApply(nil, &edit, nil); err != nil {
		t.Fatalf("LogAndApply failed: %v", err)
	}

	v := vs.Current()
	defer v.Unref()

	lk := NewLookupKey([]byte("gone"), MaxSequenceNumber)
	_, found, _, err := v.Get(ReadOptions{}, lk, cache)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("expected deleted key to be reported as not found")
	}
}

func TestVersion_OverlapInLevel(t *testing.T) {
	vs := newTestVersionSet(t)
	v := newVersion(vs)
	v.files[1] = []*FileMetaData{
		meta(1, 1000, "b", "d", 1),
		meta(2, 1000, "f", "h", 1),
	}

	if !v.OverlapInLevel(1, []byte("c"), []byte("e")) {
		t.Fatal("expected overlap with file [b,d]")
	}
	if v.OverlapInLevel(1, []byte("x"), []byte("y")) {
		t.Fatal("expected no overlap past the last file")
	}
}

func TestVersion_GetOverlappingInputs_Level0ExpandsWindow(t *testing.T) {
	vs := newTestVersionSet(t)
	v := newVersion(vs)
	// Two level-0 files whose ranges overlap each other; only the second
	// overlaps the query window directly, so GetOverlappingInputs must
	// restart and widen to include the first once the second is discovered.
	v.files[0] = []*FileMetaData{
		meta(1, 1000, "a", "e", 1),
		meta(2, 1000, "d", "h", 2),
	}

	begin := ik("f", 1, TypeValue)
	end := ik("g", 1, TypeValue)
	out := v.GetOverlappingInputs(0, &begin, &end)

	if len(out) != 2 {
		t.Fatalf("expected both overlapping level-0 files, got %d", len(out))
	}
}

func TestVersion_PickLevelForMemTableOutput_OverlapsLevel0StaysAtZero(t *testing.T) {
	vs := newTestVersionSet(t)
	v := newVersion(vs)
	v.files[0] = []*FileMetaData{meta(1, 1000, "a", "z", 1)}

	if got := v.PickLevelForMemTableOutput([]byte("m"), []byte("n")); got != 0 {
		t.Fatalf("expected level 0 when it overlaps, got %d", got)
	}
}

func TestVersion_UpdateStats_TriggersOnceAllowedSeeksExhausted(t *testing.T) {
	vs := newTestVersionSet(t)
	v := newVersion(vs)

	f := meta(1, 1024, "a", "z", 1) // minAllowedSeeks budget
	for i := int64(0); i < f.AllowedSeeks()-2; i++ {
		f.ChargeSeek()
	}

	stats := GetStats{SeekFile: f, SeekFileLevel: 0}
	if v.UpdateStats(stats) {
		t.Fatal("should not trigger before the budget is exhausted")
	}
	if !v.UpdateStats(stats) {
		t.Fatal("should trigger exactly when the budget reaches zero")
	}
	if second := v.UpdateStats(stats); second {
		t.Fatal("should not trigger twice for the same candidate")
	}
}
