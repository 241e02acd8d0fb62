// Package pipeline implements the Pipeline Executor: the state machine that
// advances a claimed job through Plan/Resume, Execute, Synthesize, and
// Finalize to a terminal status (spec §4.1).
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oremus-labs/research-orchestrator/internal/app"
	"github.com/oremus-labs/research-orchestrator/internal/artifact"
	"github.com/oremus-labs/research-orchestrator/internal/contextpack"
	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
	"github.com/oremus-labs/research-orchestrator/internal/vectorstore"
)

// Executor runs the phase state machine for one job at a time. A scheduler
// is expected to run one Executor.Run call per worker slot (spec §5).
type Executor struct {
	DB        *sql.DB
	Gateway   *gateway.Gateway
	Artifacts artifact.Store
	Vectors   vectorstore.Store
	Settings  app.Settings
}

// New constructs an Executor wired to its collaborators.
func New(db *sql.DB, gw *gateway.Gateway, artifacts artifact.Store, vectors vectorstore.Store, settings app.Settings) *Executor {
	return &Executor{DB: db, Gateway: gw, Artifacts: artifacts, Vectors: vectors, Settings: settings}
}

// Run advances jobID through every phase it has not yet completed. A
// controlHalt is swallowed once checkControl has applied the operator's
// pause/cancel to the job's status; any other error is recorded on the job
// as status=error (spec §4.1 Failure semantics, §7: "Durable-store error:
// fatal").
func (e *Executor) Run(ctx context.Context, jobID string) error {
	err := e.run(ctx, jobID)

	var halt *controlHalt
	if errors.As(err, &halt) {
		slog.Info("pipeline halted", "component", "pipeline", "job_id", jobID, "control", string(halt.kind))
		return nil
	}
	if err != nil {
		if _, setErr := store.SetJobError(e.DB, jobID, err.Error()); setErr != nil {
			slog.Error("failed to record job error", "component", "pipeline", "job_id", jobID, "error", setErr.Error())
		}
		return err
	}
	return nil
}

func (e *Executor) run(ctx context.Context, jobID string) error {
	if _, err := checkControl(e.DB, jobID); err != nil {
		return err
	}

	steps, err := store.ListSteps(e.DB, jobID)
	if err != nil {
		return fmt.Errorf("load steps: %w", err)
	}

	if len(steps) == 0 {
		steps, err = e.plan(ctx, jobID)
		if err != nil {
			return fmt.Errorf("plan phase: %w", err)
		}
	}

	if err := e.executeSteps(ctx, jobID, steps); err != nil {
		return err
	}

	if _, err := checkControl(e.DB, jobID); err != nil {
		return err
	}

	report, assets, err := e.synthesizeAndFinalize(ctx, jobID)
	if err != nil {
		return fmt.Errorf("synthesize/finalize: %w", err)
	}

	if _, err := store.PublishCompletion(e.DB, jobID, report, assets); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	e.recordCrossJobSummary(jobID, report)
	return nil
}

// recordCrossJobSummary leaves a warm-startable trace of this job's question
// and outcome for future planners to draw on (spec §4.1 Finalize phase:
// "insert a cross_job_summary note after publication"). Best-effort: a
// failure here must not undo a job that already published successfully.
func (e *Executor) recordCrossJobSummary(jobID, report string) {
	job, err := store.GetJob(e.DB, jobID)
	if err != nil {
		return
	}
	excerpt := report
	const crossJobExcerptLen = 800
	if len(excerpt) > crossJobExcerptLen {
		excerpt = excerpt[:crossJobExcerptLen]
	}
	content := fmt.Sprintf("Q: %s\nA: %s", job.Question, excerpt)
	_, _ = store.InsertNote(e.DB, &models.Note{
		JobID:      jobID,
		Role:       models.NoteRoleCrossJobSummary,
		Importance: 4,
		TokenCount: contextpack.EstimateTokens(content),
		Content:    content,
	})
}

// executeSteps runs every non-terminal step in order, performing a control
// check before each one (spec §4.1: "MUST also perform a control check
// between steps"). Steps already completed/partial/error are skipped,
// making a rescued resume idempotent (spec §3 Step, §8 Testable Property 8).
func (e *Executor) executeSteps(ctx context.Context, jobID string, steps []*models.Step) error {
	for _, step := range steps {
		if step.Status.IsTerminal() {
			continue
		}
		if _, err := checkControl(e.DB, jobID); err != nil {
			return err
		}
		if err := e.executeStep(ctx, jobID, step); err != nil {
			return fmt.Errorf("execute step %d: %w", step.StepOrder, err)
		}
		if err := store.AdvanceJobStep(e.DB, jobID, step.StepOrder); err != nil {
			return fmt.Errorf("advance job step: %w", err)
		}
		if err := store.Heartbeat(e.DB, jobID); err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
	}
	return nil
}
