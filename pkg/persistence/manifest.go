package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"lsmdb/pkg/lsm"
)

// TableInfo is the durable description of one SSTable the manifest
// tracks: enough to reopen the file and place it back at the right level
// without rereading its contents.
type TableInfo struct {
	FilePath   string
	FileNumber uint64
	FileSize   int64
	Smallest   []byte
	Largest    []byte
}

// Manifest is lsmdb's on-disk table directory, backed by the version set
// and compaction planner in pkg/lsm instead of a bespoke ad-hoc format.
// It adds the one thing pkg/lsm intentionally leaves out: mapping a file
// number to the SSTable file path LevelManager actually opens.
type Manifest struct {
	mu    sync.Mutex
	dir   string
	vset  *lsm.VersionSet
	paths map[uint64]string
}

// NewManifest constructs a manifest rooted at dir. Load must be called
// before the manifest reflects any files previously written there.
func NewManifest(dir string) *Manifest {
	vset := lsm.NewVersionSet(dir, lsm.DefaultOptions(), lsm.BytewiseComparator{}, lsm.NewFileManifestStorage(), slog.Default())
	return &Manifest{
		dir:   dir,
		vset:  vset,
		paths: make(map[uint64]string),
	}
}

// Load replays the manifest's CURRENT file, rebuilding the version chain.
// A missing CURRENT file means there is no existing manifest yet, which
// is the expected state for a brand-new database; the caller treats it
// as "nothing to load" rather than a hard failure.
func (m *Manifest) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vset.Recover()
}

// tableFileName is the SSTable naming convention LevelManager's loader
// and AddTable agree on: a file number formatted the same way the
// manifest file itself is.
func (m *Manifest) tableFileName(number uint64) string {
	return filepath.Join(m.dir, fmt.Sprintf("%06d.sst", number))
}

// AddTable records a freshly written SSTable at level and durably applies
// the change to the manifest, per the version-edit protocol pkg/lsm
// implements.
func (m *Manifest) AddTable(ctx context.Context, level int, path string, fileNumber uint64, fileSize int64, smallest, largest []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vset.MarkFileNumberUsed(fileNumber)
	m.paths[fileNumber] = path

	var edit lsm.VersionEdit
	sk := lsm.InternalKey{UserKey: smallest, Seq: 0, Type: lsm.TypeValue}
	lk := lsm.InternalKey{UserKey: largest, Seq: 0, Type: lsm.TypeValue}
	edit.AddFile(level, fileNumber, uint64(fileSize), sk, lk)

	return m.vset.LogAndApply(ctx, &edit, nil)
}

// RemoveTable records that a file compaction dropped is no longer part of
// the tree; the caller is responsible for physically deleting it once it
// is no longer live (see lsm.VersionSet.AddLiveFiles).
func (m *Manifest) RemoveTable(ctx context.Context, level int, fileNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var edit lsm.VersionEdit
	edit.DeleteFile(level, fileNumber)
	if err := m.vset.LogAndApply(ctx, &edit, nil); err != nil {
		return err
	}
	delete(m.paths, fileNumber)
	return nil
}

// GetAllTables returns every currently live table, grouped by level, for
// LevelManager to reopen at startup.
func (m *Manifest) GetAllTables() map[int][]TableInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.vset.Current()
	defer v.Unref()

	out := make(map[int][]TableInfo)
	for level := 0; level < m.vset.NumLevels(); level++ {
		files := v.Files(level)
		if len(files) == 0 {
			continue
		}
		infos := make([]TableInfo, 0, len(files))
		for _, f := range files {
			path, ok := m.paths[f.Number]
			if !ok {
				path = m.tableFileName(f.Number)
			}
			infos = append(infos, TableInfo{
				FilePath:   path,
				FileNumber: f.Number,
				FileSize:   int64(f.FileSize),
				Smallest:   f.Smallest.UserKey,
				Largest:    f.Largest.UserKey,
			})
		}
		out[level] = infos
	}
	return out
}

// pathFor resolves a file number to its on-disk path, for TableCache.
func (m *Manifest) pathFor(fileNumber uint64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.paths[fileNumber]
	if !ok {
		return "", false
	}
	return path, true
}

// VersionSet exposes the underlying version set so LevelManager's
// compaction loop can call PickCompaction/LogAndApply directly.
func (m *Manifest) VersionSet() *lsm.VersionSet { return m.vset }

// NewFileNumber hands out the next file number for a freshly created
// SSTable, per spec's file-numbering rule.
func (m *Manifest) NewFileNumber() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vset.NewFileNumber()
}
