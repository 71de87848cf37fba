package persistence

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"lsmdb/pkg/config"
	"lsmdb/pkg/lsm"
)

// LevelManager owns the open SSTable handles for every live file, the
// manifest that durably tracks which file belongs at which level, and
// the TableCache + compaction planner pkg/lsm drives. It is the piece
// that turns a Compaction plan into actual file reads/writes.
type LevelManager struct {
	mu       sync.RWMutex
	cfg      *config.PersistenceConfig
	tables   map[uint64]*SSTable
	manifest *Manifest
	cache    *TableCache
}

// NewLevelManager creates a new level manager rooted at cfg.RootPath,
// sizing the version set's compaction planner from cfg.Compaction.
func NewLevelManager(cfg config.PersistenceConfig) *LevelManager {
	opts := lsm.DefaultOptions()
	if cc := cfg.Compaction; cc.NumLevels > 0 {
		opts.NumLevels = cc.NumLevels
		opts.L0CompactionTrigger = cc.L0CompactionTrigger
		opts.TargetFileSize = cc.TargetFileSize
		opts.MaxGrandParentOverlapBytes = cc.MaxGrandParentOverlapBytes
		opts.ExpandedCompactionByteSizeLimit = cc.ExpandedCompactionByteSizeLimit
		opts.MaxMemCompactLevel = cc.MaxMemCompactLevel
	}
	manifest := &Manifest{
		dir:   cfg.RootPath,
		vset:  lsm.NewVersionSet(cfg.RootPath, opts, lsm.BytewiseComparator{}, lsm.NewFileManifestStorage(), slog.Default()),
		paths: make(map[uint64]string),
	}
	lm := &LevelManager{
		cfg:      &cfg,
		tables:   make(map[uint64]*SSTable),
		manifest: manifest,
	}
	lm.cache = NewTableCache(manifest, cfg.Cache.Capacity)

	lm.loadSSTablesFromManifest()

	return lm
}

// Manifest exposes the underlying manifest, for components (the WAL
// flusher, the compactor) that need to mint file numbers or record new
// tables directly.
func (lm *LevelManager) Manifest() *Manifest { return lm.manifest }

func (lm *LevelManager) openTable(number uint64, info TableInfo) (*SSTable, error) {
	bloom := NewBloomFilter(1000, lm.cfg.BloomFilter.FPRate)
	cache := NewBlockCache(lm.cfg.Cache.Capacity)
	table := NewSSTable(info.FilePath, bloom, cache)
	if err := table.Open(); err != nil {
		return nil, err
	}
	return table, nil
}

// loadSSTablesFromManifest opens every file the manifest's version set
// already knows about, so a restarted process's LevelManager matches the
// recovered version chain without rescanning the data directory. Opening
// each file touches disk independently, so the opens run concurrently via
// errgroup and are only folded into lm.tables once all of them settle.
func (lm *LevelManager) loadSSTablesFromManifest() {
	if err := lm.manifest.Load(); err != nil {
		return
	}

	var infosList []TableInfo
	for _, infos := range lm.manifest.GetAllTables() {
		infosList = append(infosList, infos...)
	}

	opened := make([]*SSTable, len(infosList))

	var g errgroup.Group
	for i, info := range infosList {
		i, info := i, info
		g.Go(func() error {
			table, err := lm.openTable(info.FileNumber, info)
			if err != nil {
				slog.Error("failed to open sstable from manifest", "file", info.FileNumber, "path", info.FilePath, "error", err)
				return nil
			}
			opened[i] = table
			return nil
		})
	}
	_ = g.Wait()

	lm.mu.Lock()
	defer lm.mu.Unlock()
	for i, table := range opened {
		if table != nil {
			lm.tables[infosList[i].FileNumber] = table
		}
	}
}

// AddSSTable registers a freshly written SSTable at level, both in the
// in-memory handle table and durably in the manifest.
func (lm *LevelManager) AddSSTable(ctx context.Context, sstable *SSTable, level int, fileNumber uint64, smallest, largest []byte) error {
	lm.mu.Lock()
	lm.tables[fileNumber] = sstable
	lm.mu.Unlock()

	return lm.manifest.AddTable(ctx, level, sstable.filePath, fileNumber, sstable.ApproximateSize(), smallest, largest)
}

// Get retrieves a value by key from every level, newest write-set first,
// via the current Version's per-level lookup order (spec §4.1): L0
// newest-file-first, then level 1..N in ascending, disjoint order.
func (lm *LevelManager) Get(key []byte) (*SSTableItem, error) {
	v := lm.manifest.VersionSet().Current()
	defer v.Unref()

	lk := lsm.NewLookupKey(key, lsm.MaxSequenceNumber)
	value, found, stats, err := v.Get(lsm.ReadOptions{FillCache: true}, lk, lm.cache)
	if err != nil {
		return nil, fmt.Errorf("failed to get from table: %w", err)
	}
	v.UpdateStats(stats)
	if !found {
		return nil, nil
	}
	return &SSTableItem{Key: key, Value: value, Meta: metaForValueType(lsm.TypeValue)}, nil
}

// RunCompaction picks and executes the single highest-priority
// compaction pending in the current version, per spec §4.3; it returns
// false if nothing needs compacting right now.
func (lm *LevelManager) RunCompaction(ctx context.Context) (bool, error) {
	vset := lm.manifest.VersionSet()
	c := vset.PickCompaction()
	if c == nil {
		return false, nil
	}

	if c.IsTrivialMove() {
		f := c.Input(0, 0)
		edit := c.Edit()
		c.AddInputDeletions(edit)
		edit.AddFile(c.Level()+1, f.Number, f.FileSize, f.Smallest, f.Largest)
		if err := vset.LogAndApply(ctx, edit, nil); err != nil {
			return false, fmt.Errorf("trivial move: %w", err)
		}
		slog.Info("trivially moved file", "file", f.Number, "from_level", c.Level(), "to_level", c.Level()+1)
		return true, nil
	}

	icmp := lsm.NewInternalKeyComparator(lsm.BytewiseComparator{})
	input := lsm.MakeInputIterator(c, lm.cache, icmp)
	defer input.Close()

	type output struct {
		number           uint64
		smallest, largest lsm.InternalKey
		table            *SSTable
		items            []SSTableItem
	}
	var outputs []*output
	var current *output
	var lastUserKey []byte
	haveLastUserKey := false

	finishOutput := func() error {
		if current == nil || len(current.items) == 0 {
			return nil
		}
		filePath := lm.sstablePath(current.number)
		bloom := NewBloomFilter(uint32(len(current.items)), lm.cfg.BloomFilter.FPRate)
		table := NewSSTable(filePath, bloom, NewBlockCache(lm.cfg.Cache.Capacity))
		if err := lm.WriteSSTableData(table, current.items); err != nil {
			return fmt.Errorf("write compaction output: %w", err)
		}
		if err := table.Open(); err != nil {
			return fmt.Errorf("open compaction output: %w", err)
		}
		current.table = table
		return nil
	}

	for input.First(); input.Valid(); input.Next() {
		ikeyBytes := input.Key()
		ik, perr := lsm.ParseInternalKey(ikeyBytes)
		if perr != nil {
			return false, fmt.Errorf("%w: compaction input", perr)
		}

		drop := false
		if haveLastUserKey && icmp.User().Compare(lastUserKey, ik.UserKey) == 0 {
			drop = true // superseded by a more recent entry for the same user key
		} else {
			lastUserKey = append(lastUserKey[:0], ik.UserKey...)
			haveLastUserKey = true
			if ik.Type == lsm.TypeDeletion && c.IsBaseLevelForKey(ik.UserKey) {
				drop = true
			}
		}

		if drop {
			continue
		}

		stop := c.ShouldStopBefore(ikeyBytes)
		if current == nil || stop {
			if err := finishOutput(); err != nil {
				return false, err
			}
			current = &output{number: vset.NewFileNumber(), smallest: ik}
			outputs = append(outputs, current)
		}
		if len(current.items) == 0 {
			current.smallest = ik
		}
		current.largest = ik
		current.items = append(current.items, SSTableItem{
			Key:   append([]byte(nil), ik.UserKey...),
			Value: append([]byte(nil), input.Value()...),
			ID:    ik.Seq,
			Meta:  metaForValueType(ik.Type),
		})
	}
	if err := finishOutput(); err != nil {
		return false, err
	}

	edit := c.Edit()
	c.AddInputDeletions(edit)
	for _, out := range outputs {
		if out.table == nil {
			continue
		}
		edit.AddFile(c.Level()+1, out.number, uint64(out.table.ApproximateSize()), out.smallest, out.largest)
	}
	if err := vset.LogAndApply(ctx, edit, nil); err != nil {
		return false, fmt.Errorf("apply compaction: %w", err)
	}

	lm.mu.Lock()
	for _, out := range outputs {
		if out.table != nil {
			lm.tables[out.number] = out.table
		}
	}
	for which := 0; which < 2; which++ {
		for i := 0; i < c.NumInputFiles(which); i++ {
			delete(lm.tables, c.Input(which, i).Number)
		}
	}
	lm.mu.Unlock()

	slog.Info("compacted level", "level", c.Level(), "inputs0", c.NumInputFiles(0), "inputs1", c.NumInputFiles(1), "outputs", len(outputs))
	return true, nil
}

func (lm *LevelManager) sstablePath(number uint64) string {
	return fmt.Sprintf("%s/%06d.sst", lm.cfg.RootPath, number)
}

func (lm *LevelManager) WriteSSTableData(sstable *SSTable, items []SSTableItem) error {
	const (
		sizeFieldSize = 4
		seqNumSize    = 8
		metaSize      = 8
	)

	file, err := os.Create(sstable.filePath)
	if err != nil {
		return fmt.Errorf("failed to create SSTable file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("failed to close sstable file", "error", cerr)
		}
	}()

	// Write data blocks
	blockIndex := make([]IndexEntry, 0)
	blockOffset := int64(0)
	blockNum := 0

	for _, item := range items {
		// Add to bloom filter
		if sstable.bloom != nil {
			sstable.bloom.Add(item.Key)
		}

		// Check sizes before casting
		if len(item.Key) > math.MaxUint32 {
			return fmt.Errorf("key too large: %d", len(item.Key))
		}
		if len(item.Value) > math.MaxUint32 {
			return fmt.Errorf("value too large: %d", len(item.Value))
		}

		// Write key length
		if err := binary.Write(file, binary.LittleEndian, uint32(len(item.Key))); err != nil {
			return err
		}

		// Write key
		if _, err := file.Write(item.Key); err != nil {
			return err
		}

		// Write value length
		if err := binary.Write(file, binary.LittleEndian, uint32(len(item.Value))); err != nil {
			return err
		}

		// Write value
		if _, err := file.Write(item.Value); err != nil {
			return err
		}

		// Write sequence number
		if err := binary.Write(file, binary.LittleEndian, item.ID); err != nil {
			return err
		}

		// Write metadata
		if err := binary.Write(file, binary.LittleEndian, item.Meta); err != nil {
			return err
		}

		// Add to block index
		blockSz := sizeFieldSize + len(item.Key) + sizeFieldSize + len(item.Value) + seqNumSize + metaSize
		blockIndex = append(blockIndex, IndexEntry{
			Key:         item.Key,
			BlockOffset: blockOffset,
			BlockSize:   blockSz,
			BlockInd:    blockNum,
		})

		blockOffset += int64(blockSz)
		blockNum++
	}

	// Write block index
	indexData := make([]byte, 0)

	for _, entry := range blockIndex {
		// Write key length
		indexData = append(indexData, make([]byte, 4)...)
		binary.LittleEndian.PutUint32(indexData[len(indexData)-4:], uint32(len(entry.Key)))

		// Write key
		indexData = append(indexData, entry.Key...)

		// Write block offset
		indexData = append(indexData, make([]byte, 8)...)
		if entry.BlockOffset < 0 {
			return fmt.Errorf("negative block offset: %d", entry.BlockOffset)
		}
		binary.LittleEndian.PutUint64(indexData[len(indexData)-8:], uint64(entry.BlockOffset))

		// Write block size
		indexData = append(indexData, make([]byte, 4)...)
		if entry.BlockSize < 0 {
			return fmt.Errorf("negative block size: %d", entry.BlockSize)
		}
		binary.LittleEndian.PutUint32(indexData[len(indexData)-4:], uint32(entry.BlockSize))

		// Write block index
		indexData = append(indexData, make([]byte, 4)...)
		binary.LittleEndian.PutUint32(indexData[len(indexData)-4:], uint32(entry.BlockInd))
	}

	// Write index to file
	if _, err := file.Write(indexData); err != nil {
		return err
	}

	// Write index size
	if len(indexData) > math.MaxUint32 {
		return fmt.Errorf("index too large: %d", len(indexData))
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(len(indexData))); err != nil {
		return err
	}

	return nil
}

// KeyValue represents a key-value pair
type KeyValue struct {
	Key   []byte
	Value []byte
}
