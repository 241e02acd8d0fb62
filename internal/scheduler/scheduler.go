// Package scheduler runs the Claimer and Rescue Sweeper on a fixed cadence
// and fans claimed jobs out to the Pipeline Executor across a bounded pool
// of worker slots (spec §4.1 Claimer, §4.3 Rescue Sweeper, §5).
package scheduler

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oremus-labs/research-orchestrator/internal/app"
	"github.com/oremus-labs/research-orchestrator/internal/pipeline"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// tickInterval is how often the scheduler polls for claimable work. Short
// enough that a freshly queued job starts promptly, long enough not to
// hammer SQLite with empty claim attempts.
const tickInterval = 2 * time.Second

// Scheduler owns one worker pool's worth of Pipeline Executor runs against a
// single database.
type Scheduler struct {
	DB         *sql.DB
	Executor   *pipeline.Executor
	Settings   app.Settings
	WorkerName string

	lastSweep time.Time
}

// New constructs a Scheduler. workerName identifies this process's claims in
// jobs.claimed_by, distinguishing it from any sibling scheduler sharing the
// same database.
func New(db *sql.DB, executor *pipeline.Executor, settings app.Settings, workerName string) *Scheduler {
	return &Scheduler{DB: db, Executor: executor, Settings: settings, WorkerName: workerName}
}

// Run blocks, ticking the sweep-then-claim loop until ctx is cancelled. Each
// tick's claimed jobs run concurrently, capped at Settings.MaxConcurrent in
// flight at once (spec §5: one Executor.Run call per worker slot).
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	limit := s.Settings.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, limit)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, limit int) {
	s.sweepIfDue()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < limit; i++ {
		g.Go(func() error {
			return s.claimAndRunOne(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("scheduler tick failed", "component", "scheduler", "error", err.Error())
	}
}

// claimAndRunOne claims at most one job and runs it to its next halt or
// terminal status. Returning nil on "nothing to claim" keeps an idle tick
// from being logged as a failure.
func (s *Scheduler) claimAndRunOne(ctx context.Context) error {
	job, err := store.ClaimNextJob(s.DB, s.WorkerName)
	if err != nil {
		slog.Error("claim failed", "component", "scheduler", "error", err.Error())
		return nil
	}
	if job == nil {
		return nil
	}

	slog.Info("claimed job", "component", "scheduler", "job_id", job.ID, "worker", s.WorkerName)
	if err := s.Executor.Run(ctx, job.ID); err != nil {
		slog.Error("executor run failed", "component", "scheduler", "job_id", job.ID, "error", err.Error())
	}
	return nil
}

// sweepIfDue runs the Rescue Sweeper at most once per grace period, so a
// tightly polling scheduler doesn't re-scan the jobs table every tick (spec
// §4.3: sweep cadence is independent of the claim cadence).
func (s *Scheduler) sweepIfDue() {
	grace := time.Duration(s.Settings.Rescue.GraceSeconds) * time.Second
	if grace <= 0 {
		grace = tickInterval
	}
	if time.Since(s.lastSweep) < grace {
		return
	}
	s.lastSweep = time.Now()

	result, err := store.RescueStaleJobs(s.DB, s.Settings.Rescue.StartSeconds, s.Settings.Rescue.HeartbeatSeconds, s.Settings.Rescue.GraceSeconds)
	if err != nil {
		slog.Error("rescue sweep failed", "component", "scheduler", "error", err.Error())
		return
	}
	if len(result.RequeuedJobIDs) > 0 {
		slog.Info("rescue sweep requeued stale jobs", "component", "scheduler", "count", len(result.RequeuedJobIDs), "job_ids", result.RequeuedJobIDs)
	}
}
