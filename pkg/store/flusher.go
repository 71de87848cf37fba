package store

import (
	"context"
	"errors"
	"fmt"

	"lsmdb/pkg/memtable"
	"lsmdb/pkg/persistence"
)

type Flusher struct {
	lvlManager *persistence.LevelManager
	manifest   *persistence.Manifest
	in         <-chan memtable.SortedSet
	dataDir    string

	cancel func()
}

func NewFlusher(
	in <-chan memtable.SortedSet,
	dataDir string,
	manager *persistence.LevelManager,
	manifest *persistence.Manifest,
) *Flusher {
	return &Flusher{
		lvlManager: manager,
		manifest:   manifest,
		dataDir:    dataDir,
		in:         in,
		cancel:     func() {},
	}
}

func (f *Flusher) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	for {
		if err := f.run(ctx); err != nil {
			return err
		}
	}
}

func (f *Flusher) run(ctx context.Context) error {
	select {
	case ss := <-f.in:
		err := f.flush(ctx, ss)
		if err != nil {
			return fmt.Errorf("failed to flush memtable: %w", err)
		}
	case <-ctx.Done():
		return errors.New("flusher stopped by context")
	}

	return nil
}

func (f *Flusher) flush(ctx context.Context, ss memtable.SortedSet) error {
	snapshot := ss.Sorted()

	if len(snapshot) == 0 {
		return nil
	}

	// Create SSTable from memtable data
	fileNumber := f.manifest.NewFileNumber()
	filePath := fmt.Sprintf("%s/L0_%d.sst", f.dataDir, fileNumber)

	// Create bloom filter
	bloom := persistence.NewBloomFilter(uint32(len(snapshot)), 0.01)

	// Create cache
	cache := persistence.NewBlockCache(100)

	// Create SSTable
	sstable := persistence.NewSSTable(filePath, bloom, cache)

	// Convert memtable items to SSTable items
	sstableItems := make([]persistence.SSTableItem, len(snapshot))
	for i, item := range snapshot {
		sstableItems[i] = persistence.SSTableItem{
			Key:   item.Key,
			Value: item.Value,
			ID:    item.SeqN,
			Meta:  item.Meta,
		}
	}

	// Write data to SSTable
	if err := f.lvlManager.WriteSSTableData(sstable, sstableItems); err != nil {
		return fmt.Errorf("failed to write SSTable data: %w", err)
	}

	// Open the table
	if err := sstable.Open(); err != nil {
		return fmt.Errorf("failed to open SSTable: %w", err)
	}

	// Add to level manager (L0) and the manifest
	smallest, largest := snapshot[0].Key, snapshot[len(snapshot)-1].Key
	if err := f.lvlManager.AddSSTable(ctx, sstable, 0, fileNumber, smallest, largest); err != nil {
		return fmt.Errorf("failed to add SSTable to level manager: %w", err)
	}

	return nil
}

func (f *Flusher) Stop() {
	f.cancel()
}
