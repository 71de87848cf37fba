package store

import (
	"context"
	"log/slog"
	"time"

	"lsmdb/pkg/persistence"
)

// compactionIdleDelay is how long the background compactor waits after
// finding nothing to compact before checking the version set again.
const compactionIdleDelay = 100 * time.Millisecond

// compactor drives persistence.LevelManager.RunCompaction in the
// background, one compaction at a time, so a flush never blocks on
// compaction work itself.
type compactor struct {
	lvlManager *persistence.LevelManager
	cancel     func()
}

func newCompactor(lvlManager *persistence.LevelManager) *compactor {
	return &compactor{lvlManager: lvlManager, cancel: func() {}}
}

func (c *compactor) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.loop(ctx)
}

func (c *compactor) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ran, err := c.lvlManager.RunCompaction(ctx)
		if err != nil {
			slog.Error("compaction failed", "error", err)
			ran = false
		}
		if !ran {
			select {
			case <-ctx.Done():
				return
			case <-time.After(compactionIdleDelay):
			}
		}
	}
}

func (c *compactor) Stop() {
	c.cancel()
}
