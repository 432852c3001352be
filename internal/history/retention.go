package history

// retention.go runs the background purge of old history entries. It runs
// once on start, then every CheckInterval, until the context is cancelled.
// A failed purge is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the retention job.
// Zero values select the defaults.
type RetentionConfig struct {
	RetentionDays int           // Days to keep entries (default: 90)
	CheckInterval time.Duration // How often to run (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// Retention purges entries older than the retention window.
type Retention struct {
	store  Store
	cfg    RetentionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRetention creates a retention job for store.
func NewRetention(store Store, cfg RetentionConfig, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{store: store, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Start runs the job until ctx is cancelled.
func (r *Retention) Start(ctx context.Context) {
	r.logger.Info("history retention started",
		"retention_days", r.cfg.RetentionDays,
		"check_interval", r.cfg.CheckInterval,
	)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("history retention stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one purge and returns the number of removed entries.
func (r *Retention) RunOnce(ctx context.Context) int64 {
	start := time.Now()
	cutoff := r.now().AddDate(0, 0, -r.cfg.RetentionDays)

	purged, err := r.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.Error("history purge failed", "error", err)
		return 0
	}

	r.logger.Info("purged export history",
		"entries_purged", purged,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
