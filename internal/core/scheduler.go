package core

// scheduler.go runs the periodic maintenance jobs: dropping idle sessions and
// purging old import run history.
//
// Jobs log failures and keep running; a failed purge is retried on the next
// tick.

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceConfig holds the schedule. Zero values select the defaults.
type MaintenanceConfig struct {
	Interval         time.Duration // How often to run (default: 1m)
	RunRetentionDays int           // Days of run history to keep; 0 keeps everything
}

// StartMaintenance runs one cycle immediately and then one per interval
// until ctx is cancelled.
func (s *Service) StartMaintenance(ctx context.Context, cfg MaintenanceConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}

	slog.Info("maintenance scheduler started",
		"interval", cfg.Interval,
		"session_ttl", s.cfg.SessionTTL,
		"run_retention_days", cfg.RunRetentionDays,
	)

	s.runMaintenance(ctx, cfg, time.Now())

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance scheduler stopped")
			return
		case now := <-ticker.C:
			s.runMaintenance(ctx, cfg, now)
		}
	}
}

func (s *Service) runMaintenance(ctx context.Context, cfg MaintenanceConfig, now time.Time) {
	if n := s.ExpireIdle(now); n > 0 {
		slog.Info("expired idle import sessions", "sessions_expired", n)
	}

	if s.runs == nil || cfg.RunRetentionDays <= 0 {
		return
	}

	start := time.Now()
	before := now.AddDate(0, 0, -cfg.RunRetentionDays)
	purged, err := s.runs.PurgeRuns(ctx, before)
	if err != nil {
		slog.Error("purge import runs failed", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("purged old import runs",
			"runs_purged", purged,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
