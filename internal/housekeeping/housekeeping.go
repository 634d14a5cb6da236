// Package housekeeping implements C10: the periodic retention/GC loops
// that expire tokens, purge soft-deleted applications, purge old events
// and responses, and refresh analytics materialised views. Each task runs
// as its own "sleep(startup_grace); loop { run; sleep(period) }" goroutine,
// serialized behind a shared semaphore so at most one runs at a time,
// grounded on internal/reputation/decay_scheduler.go's ticker-loop shape.
package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/hook0/webhooks-core/internal/config"
	"github.com/hook0/webhooks-core/internal/storage"
)

// task is one named retention job.
type task struct {
	name string
	run  func(ctx context.Context, dryRun bool) (affected int64, err error)
}

// Runner owns the shared semaphore and the configured set of tasks.
type Runner struct {
	store *storage.HousekeepingStore
	cfg   config.HousekeepConfig
	sem   chan struct{}
	tasks []task
	log   *slog.Logger
}

// NewRunner wires the standard task set. The refresh timeout is not passed
// in: each tick derives it as period/2, per §5's "run-timeout equal to half
// the period".
func NewRunner(store *storage.Store, cfg config.HousekeepConfig) *Runner {
	hs := storage.NewHousekeepingStore(store)
	grace := time.Duration(cfg.GraceDays) * 24 * time.Hour

	r := &Runner{
		store: hs,
		cfg:   cfg,
		sem:   make(chan struct{}, 1),
		log:   slog.With("component", "housekeeping"),
	}

	r.tasks = []task{
		{
			name: "expire_tokens",
			run: func(ctx context.Context, dryRun bool) (int64, error) {
				return hs.ExpireTokens(ctx, grace, dryRun)
			},
		},
		{
			name: "purge_soft_deleted_applications",
			run: func(ctx context.Context, dryRun bool) (int64, error) {
				return hs.PurgeSoftDeletedApplications(ctx, grace, dryRun)
			},
		},
		{
			name: "purge_old_events",
			run: func(ctx context.Context, dryRun bool) (int64, error) {
				return hs.PurgeOldEvents(ctx, cfg.EventRetentionDays, grace, dryRun)
			},
		},
		{
			name: "refresh_analytics_views",
			run: func(ctx context.Context, _ bool) (int64, error) {
				return 0, hs.RefreshAnalyticsViews(ctx)
			},
		},
	}

	return r
}

// Run starts every task's loop goroutine and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	startupGrace := time.Duration(r.cfg.StartupGraceSec) * time.Second
	period := time.Duration(r.cfg.PeriodSec) * time.Second

	done := make(chan struct{}, len(r.tasks))
	for _, t := range r.tasks {
		go func(t task) {
			r.loop(ctx, t, startupGrace, period)
			done <- struct{}{}
		}(t)
	}

	<-ctx.Done()
	for range r.tasks {
		<-done
	}
}

func (r *Runner) loop(ctx context.Context, t task, startupGrace, period time.Duration) {
	select {
	case <-time.After(startupGrace):
	case <-ctx.Done():
		return
	}

	timer := time.NewTicker(period)
	defer timer.Stop()

	r.tick(ctx, t, period)
	for {
		select {
		case <-timer.C:
			r.tick(ctx, t, period)
		case <-ctx.Done():
			return
		}
	}
}

// tick serializes task execution behind the shared semaphore and bounds
// the run to half the period; exceeding the timeout logs an error but
// never aborts the process, per §5.
func (r *Runner) tick(parent context.Context, t task, period time.Duration) {
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-parent.Done():
		return
	}

	ctx, cancel := context.WithTimeout(parent, period/2)
	defer cancel()

	start := time.Now()
	affected, err := t.run(ctx, r.cfg.DryRun)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		r.log.Error("housekeeping task failed", "task", t.name, "elapsed", elapsed, "error", err)
	case r.cfg.DryRun:
		r.log.Info("housekeeping task dry-run", "task", t.name, "would_affect", affected, "elapsed", elapsed)
	default:
		r.log.Info("housekeeping task complete", "task", t.name, "affected", affected, "elapsed", elapsed)
	}
}
