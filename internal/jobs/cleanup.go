// Package jobs runs the periodic maintenance sweeps: expired refresh
// credentials, revoked records past retention, stale blacklist entries and
// cache purges.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweemee/exam-server/internal/blacklist"
	"github.com/sweemee/exam-server/internal/refresh"
	"github.com/sweemee/exam-server/internal/sessioncache"
)

const sweepTimeout = 30 * time.Second

type Cleaner struct {
	Refresh  *refresh.Store
	Registry *blacklist.Registry
	Sessions *sessioncache.Cache
	Interval time.Duration
	Log      *slog.Logger
}

// Start launches the sweep loop; it stops when ctx is cancelled.
func (c *Cleaner) Start(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx)
			}
		}
	}()
}

func (c *Cleaner) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	refreshDeleted, err := c.Refresh.Cleanup(sweepCtx)
	if err != nil {
		c.Log.Error("refresh cleanup failed", "error", err)
	}

	blacklistDeleted, err := c.Registry.Cleanup(sweepCtx)
	if err != nil {
		c.Log.Error("blacklist cleanup failed", "error", err)
	}

	purged := c.Sessions.Purge()

	if refreshDeleted > 0 || blacklistDeleted > 0 || purged > 0 {
		c.Log.Info("cleanup sweep completed",
			"refresh_deleted", refreshDeleted,
			"blacklist_deleted", blacklistDeleted,
			"sessions_purged", purged,
		)
	}
}
