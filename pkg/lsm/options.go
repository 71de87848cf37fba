package lsm

// Options bundles the design constants from spec §4.5, so they can be
// tuned per engine instance instead of hard-coded. Defaults match the
// "typical defaults, not normative" values spec.md documents.
type Options struct {
	// NumLevels is L in spec §3/§4 — the number of levels in the tree.
	NumLevels int
	// L0CompactionTrigger is the level-0 file count at which Finalize's
	// score for level 0 reaches 1.0.
	L0CompactionTrigger int
	// TargetFileSize bounds a single compaction output file and, via
	// MaxFileSizeForLevel, every level's per-file size budget.
	TargetFileSize int64
	// MaxGrandParentOverlapBytes bounds how much level+2 data a single
	// level->level+1 compaction output file is allowed to overlap.
	MaxGrandParentOverlapBytes int64
	// ExpandedCompactionByteSizeLimit bounds the opportunistic level-side
	// input expansion SetupOtherInputs performs.
	ExpandedCompactionByteSizeLimit int64
	// MaxMemCompactLevel caps how far PickLevelForMemTableOutput will push
	// a freshly flushed memtable down the tree.
	MaxMemCompactLevel int
}

// DefaultOptions returns the constants spec §4.5 lists as typical.
func DefaultOptions() Options {
	const targetFileSize = 2 * 1024 * 1024
	return Options{
		NumLevels:                       7,
		L0CompactionTrigger:             4,
		TargetFileSize:                  targetFileSize,
		MaxGrandParentOverlapBytes:       10 * targetFileSize,
		ExpandedCompactionByteSizeLimit:  25 * targetFileSize,
		MaxMemCompactLevel:               2,
	}
}

// maxBytesForLevel implements spec §4.4's Finalize size budget: level 1 is
// 10MiB, and every level above multiplies by 10.
func maxBytesForLevel(level int) float64 {
	result := 10.0 * 1024 * 1024
	for level > 1 {
		result *= 10
		level--
	}
	return result
}

func (o Options) maxFileSizeForLevel(int) int64 {
	return o.TargetFileSize
}

func totalFileSize(files []*FileMetaData) int64 {
	var sum int64
	for _, f := range files {
		sum += int64(f.FileSize)
	}
	return sum
}
