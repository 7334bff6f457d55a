package jobs

// sweeper.go recovers jobs that fell between the cracks.
//
// Two situations are handled on every pass:
//  1. A job stays queued past the stale window (its dispatch was lost, for
//     example the process died between persisting and enqueueing). It is
//     dispatched again; the claim keeps this safe if the original delivery
//     shows up later.
//  2. A job stays processing past the job timeout plus the stale window
//     (its worker died). It is failed so pollers see a terminal state.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// SweeperConfig holds configuration for the Sweeper.
type SweeperConfig struct {
	Interval   time.Duration // How often to run (default: 1m)
	StaleAfter time.Duration // Grace period before a job counts as stuck (default: 2m)
	JobTimeout time.Duration // Runner job timeout (default: DefaultJobTimeout)
}

// Sweeper periodically re-dispatches lost jobs and fails abandoned ones.
type Sweeper struct {
	store      Store
	dispatcher Dispatcher
	cfg        SweeperConfig
	now        func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(store Store, dispatcher Dispatcher, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start runs a sweep immediately, then every Interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("job sweeper started",
		"interval", s.cfg.Interval.String(),
		"stale_after", s.cfg.StaleAfter.String(),
	)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// SweepResult counts what one pass did.
type SweepResult struct {
	Redispatched int
	Failed       int
}

// Sweep performs one pass.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	now := s.now()

	queued, err := s.store.ListStale(ctx, core.JobQueued, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		slog.Error("list stale queued jobs", "error", err)
	}
	for _, job := range queued {
		if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
			slog.Error("re-dispatch import job", "job_id", job.ID, "error", err)
			continue
		}
		res.Redispatched++
	}

	processing, err := s.store.ListStale(ctx, core.JobProcessing, now.Add(-(s.cfg.JobTimeout + s.cfg.StaleAfter)))
	if err != nil {
		slog.Error("list stale processing jobs", "error", err)
	}
	for _, job := range processing {
		if _, err := s.store.Fail(ctx, job.ID, "worker lost: import did not finish in time", now); err != nil {
			slog.Warn("fail abandoned import job", "job_id", job.ID, "error", err)
			continue
		}
		res.Failed++
	}

	if res.Redispatched > 0 || res.Failed > 0 {
		slog.Info("job sweep completed", "redispatched", res.Redispatched, "failed", res.Failed)
	}
	return res
}
