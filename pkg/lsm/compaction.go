package lsm

// Compaction describes one level -> level+1 merge job: the input files,
// the opportunistically-expanded sibling-level files, and the grandparent
// files used to decide when an output file should stop growing, per
// spec §2.4/§4.3.
type Compaction struct {
	level             int
	maxOutputFileSize int64
	inputVersion      *Version

	inputs [2][]*FileMetaData // inputs[0]: level, inputs[1]: level+1

	grandparents []*FileMetaData

	// grandparentIndex/seenKey/overlappedBytes are the running state
	// ShouldStopBefore threads across a single compaction's output stream.
	grandparentIndex int
	seenKey          bool
	overlappedBytes  int64

	// levelPtrs[i] tracks IsBaseLevelForKey's cursor into level i, so
	// successive ascending-key calls during a single compaction don't
	// rescan from the start each time.
	levelPtrs []int

	edit VersionEdit
}

func newCompaction(vs *VersionSet, level int) *Compaction {
	c := &Compaction{
		level:             level,
		maxOutputFileSize: vs.opts.maxFileSizeForLevel(level),
		inputVersion:      vs.current,
		levelPtrs:         make([]int, vs.opts.NumLevels),
	}
	c.inputVersion.Ref()
	return c
}

func (c *Compaction) Level() int                { return c.level }
func (c *Compaction) Edit() *VersionEdit         { return &c.edit }
func (c *Compaction) NumInputFiles(which int) int { return len(c.inputs[which]) }
func (c *Compaction) Input(which, i int) *FileMetaData { return c.inputs[which][i] }

// IsTrivialMove reports whether this compaction can be satisfied by
// moving its single level-file to level+1 without rewriting anything,
// per spec §4.3: exactly one input at level, nothing at level+1, and the
// move wouldn't create excessive grandparent overlap for a future
// compaction of the destination level.
func (c *Compaction) IsTrivialMove() bool {
	vs := c.inputVersion.vset
	return len(c.inputs[0]) == 1 &&
		len(c.inputs[1]) == 0 &&
		totalFileSize(c.grandparents) <= vs.opts.MaxGrandParentOverlapBytes
}

// AddInputDeletions records every input file as deleted in the edit that
// will describe this compaction's result.
func (c *Compaction) AddInputDeletions(edit *VersionEdit) {
	for which := 0; which < 2; which++ {
		for _, f := range c.inputs[which] {
			edit.DeleteFile(c.level+which, f.Number)
		}
	}
}

// IsBaseLevelForKey reports whether userKey is absent from level
// c.level+2 and every deeper level at the time this compaction began, per
// spec §4.3: if so, a deletion for userKey can be dropped instead of
// carried forward, since no older value for it remains below.
func (c *Compaction) IsBaseLevelForKey(userKey []byte) bool {
	v := c.inputVersion
	ucmp := v.cmp.User()
	for level := c.level + 2; level < len(v.files); level++ {
		files := v.files[level]
		for c.levelPtrs[level] < len(files) {
			f := files[c.levelPtrs[level]]
			if ucmp.Compare(userKey, f.Largest.UserKey) <= 0 {
				if ucmp.Compare(userKey, f.Smallest.UserKey) >= 0 {
					return false
				}
				break
			}
			c.levelPtrs[level]++
		}
	}
	return true
}

// ShouldStopBefore reports whether the compaction's current output file
// should be closed before appending ikey, because continuing would let
// the output overlap more than MaxGrandParentOverlapBytes of
// grandparent data, per spec §4.3.
func (c *Compaction) ShouldStopBefore(ikey []byte) bool {
	vs := c.inputVersion.vset
	icmp := vs.icmp

	for c.grandparentIndex < len(c.grandparents) &&
		icmp.Compare(ikey, c.grandparents[c.grandparentIndex].Largest.Encode()) > 0 {
		if c.seenKey {
			c.overlappedBytes += int64(c.grandparents[c.grandparentIndex].FileSize)
		}
		c.grandparentIndex++
	}
	c.seenKey = true

	if c.overlappedBytes > vs.opts.MaxGrandParentOverlapBytes {
		c.overlappedBytes = 0
		return true
	}
	return false
}

// releaseInputs drops this compaction's reference on inputVersion; must
// be called exactly once after the compaction finishes or is abandoned.
func (c *Compaction) releaseInputs() {
	if c.inputVersion != nil {
		c.inputVersion.Unref()
		c.inputVersion = nil
	}
}

// PickCompaction selects the next compaction to run, per spec §4.3:
// prefer a size-triggered compaction (Finalize's highest-scoring level)
// over a seek-triggered one, and skip entirely if neither applies.
func (vs *VersionSet) PickCompaction() *Compaction {
	v := vs.current
	level, score := v.CompactionScore()
	sizeCompaction := score >= 1

	var c *Compaction
	if sizeCompaction {
		c = newCompaction(vs, level)
		for _, f := range v.files[level] {
			if icmpAfterCompactPointer(vs, level, f) {
				c.inputs[0] = []*FileMetaData{f}
				break
			}
		}
		if len(c.inputs[0]) == 0 && len(v.files[level]) > 0 {
			c.inputs[0] = []*FileMetaData{v.files[level][0]}
		}
	} else if f, seekLevel := v.FileToCompact(); f != nil {
		c = newCompaction(vs, seekLevel)
		c.inputs[0] = []*FileMetaData{f}
	} else {
		return nil
	}

	if c.level == 0 {
		smallest, largest := filesRange(vs.icmp, c.inputs[0])
		c.inputs[0] = v.GetOverlappingInputs(0, &smallest, &largest)
		if len(c.inputs[0]) == 0 {
			c.releaseInputs()
			return nil
		}
	}

	vs.setupOtherInputs(c)
	return c
}

func icmpAfterCompactPointer(vs *VersionSet, level int, f *FileMetaData) bool {
	cp := vs.compactPointer[level]
	if cp.UserKey == nil {
		return true
	}
	return vs.icmp.CompareKeys(f.Largest, cp) > 0
}

// filesRange returns the (min smallest, max largest) bound spanning files,
// which must be non-empty.
func filesRange(icmp InternalKeyComparator, files []*FileMetaData) (smallest, largest InternalKey) {
	smallest, largest = files[0].Smallest, files[0].Largest
	for _, f := range files[1:] {
		if icmp.CompareKeys(f.Smallest, smallest) < 0 {
			smallest = f.Smallest
		}
		if icmp.CompareKeys(f.Largest, largest) > 0 {
			largest = f.Largest
		}
	}
	return smallest, largest
}

// setupOtherInputs fills in inputs[1] (the overlapping level+1 files),
// opportunistically widens inputs[0] when doing so doesn't grow inputs[1]
// and stays under the expansion byte budget, and records the grandparent
// file list used by ShouldStopBefore, per spec §4.3.
func (vs *VersionSet) setupOtherInputs(c *Compaction) {
	v := c.inputVersion
	level := c.level

	smallest, largest := filesRange(vs.icmp, c.inputs[0])
	c.inputs[1] = v.GetOverlappingInputs(level+1, &smallest, &largest)

	allStart, allLimit := filesRange(vs.icmp, append(append([]*FileMetaData{}, c.inputs[0]...), c.inputs[1]...))

	if len(c.inputs[1]) > 0 {
		expanded0 := v.GetOverlappingInputs(level, &allStart, &allLimit)
		if len(expanded0) > len(c.inputs[0]) {
			newStart, newLimit := filesRange(vs.icmp, expanded0)
			expanded1 := v.GetOverlappingInputs(level+1, &newStart, &newLimit)
			if len(expanded1) == len(c.inputs[1]) &&
				totalFileSize(expanded0)+totalFileSize(expanded1) < vs.opts.ExpandedCompactionByteSizeLimit {
				smallest, largest = newStart, newLimit
				c.inputs[0] = expanded0
				c.inputs[1] = expanded1
				allStart, allLimit = filesRange(vs.icmp, append(append([]*FileMetaData{}, c.inputs[0]...), c.inputs[1]...))
			}
		}
	}

	if level+2 < vs.opts.NumLevels {
		c.grandparents = v.GetOverlappingInputs(level+2, &allStart, &allLimit)
	}

	vs.compactPointer[level] = largest
	c.edit.SetCompactPointer(level, largest)
}

// CompactRange builds a compaction covering every level file overlapping
// [begin, end], capped so the run doesn't grow unreasonably large, per
// spec §4.3's manual-compaction entry point.
func (vs *VersionSet) CompactRange(level int, begin, end *InternalKey) *Compaction {
	inputs := vs.current.GetOverlappingInputs(level, begin, end)
	if len(inputs) == 0 {
		return nil
	}

	if level > 0 {
		limit := vs.opts.maxFileSizeForLevel(level)
		var total int64
		for i, f := range inputs {
			total += int64(f.FileSize)
			if total > limit && i > 0 {
				inputs = inputs[:i]
				break
			}
		}
	}

	c := newCompaction(vs, level)
	c.inputs[0] = inputs
	vs.setupOtherInputs(c)
	return c
}
