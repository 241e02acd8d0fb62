package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/research-orchestrator/internal/app"
	"github.com/oremus-labs/research-orchestrator/internal/artifact"
	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/pipeline"
	"github.com/oremus-labs/research-orchestrator/internal/store"
	"github.com/oremus-labs/research-orchestrator/internal/vectorstore"
)

func noLimits() gateway.RateLimits {
	return gateway.RateLimits{Search: 1000, Fetch: 1000, Chat: 1000, Embed: 1000}
}

func TestScheduler_ClaimAndRunOne_NoJobsIsNoop(t *testing.T) {
	db, err := store.InitDBWithPath(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	gw := gateway.New(gateway.EndpointConfig{}, noLimits(), nil)
	exec := pipeline.New(db, gw, nil, nil, app.Settings{})
	sched := New(db, exec, app.Settings{}, "test-worker")

	require.NoError(t, sched.claimAndRunOne(context.Background()))
}

// TestScheduler_ClaimAndRunOne_RunsJobToCompletion drives a whole job through
// Plan, Execute, Synthesize, and Finalize against stub search/fetch/chat
// endpoints, exercising Testable Property 3: a completed job has a non-null
// final_report, report_assets, and completed_at.
func TestScheduler_ClaimAndRunOne_RunsJobToCompletion(t *testing.T) {
	fetchTarget := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Go is a compiled, statically typed language.</p></body></html>`))
	}))
	defer fetchTarget.Close()

	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{{"title": "Go language", "url": fetchTarget.URL}},
		})
	}))
	defer search.Close()

	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "Go is a statically typed, compiled language."})
	}))
	defer chat.Close()

	db, err := store.InitDBWithPath(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	job, err := store.CreateJob(db, "What is Go?", models.JobOptions{MaxSteps: 1}, map[string]string{
		"time_horizon":        "1 week",
		"region_focus":        "global",
		"data_modalities":     "text",
		"integration_targets": "none",
		"quality_constraints": "none",
	})
	require.NoError(t, err)
	require.Equal(t, models.JobStatusQueued, job.Status)

	gw := gateway.New(gateway.EndpointConfig{PrimarySearchURL: search.URL, ChatURL: chat.URL}, noLimits(), nil)
	artifacts, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	vectors := vectorstore.NewInProcessStore()

	settings := app.Settings{
		MaxSteps:          1,
		MaxLLMTokens:      500,
		MaxContext:        4000,
		MaxNotesForSynth:  10,
		WarmNotesLimit:    5,
		WarmImportanceMin: 1,
	}

	exec := pipeline.New(db, gw, artifacts, vectors, settings)
	sched := New(db, exec, settings, "test-worker")

	require.NoError(t, sched.claimAndRunOne(context.Background()))

	got, err := store.GetJob(db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotEmpty(t, got.FinalReport)
	require.NotNil(t, got.ReportAssets)
	assert.NotEmpty(t, got.ReportAssets.MarkdownURL)
	assert.NotNil(t, got.CompletedAt)
}

func TestScheduler_SweepIfDue_RespectsGracePeriod(t *testing.T) {
	db, err := store.InitDBWithPath(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sched := New(db, nil, app.Settings{Rescue: app.RescueSettings{GraceSeconds: 3600}}, "test-worker")

	sched.sweepIfDue()
	first := sched.lastSweep
	require.False(t, first.IsZero())

	sched.sweepIfDue()
	assert.Equal(t, first, sched.lastSweep, "second call within the grace period should not re-sweep")
}

// TestScheduler_SweepIfDue_RescuesStalledJob drives a job that claimed a step
// and then went silent past its heartbeat threshold, asserting the sweep
// requeues the job and resets its running step back to pending (spec §4.5
// Rescue Sweeper, §8 Testable Property 5, Scenario S2).
func TestScheduler_SweepIfDue_RescuesStalledJob(t *testing.T) {
	db, err := store.InitDBWithPath(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	job, err := store.CreateJob(db, "What stalled?", models.JobOptions{}, map[string]string{
		"time_horizon":        "1 week",
		"region_focus":        "global",
		"data_modalities":     "text",
		"integration_targets": "none",
		"quality_constraints": "none",
	})
	require.NoError(t, err)

	claimed, err := store.ClaimNextJob(db, "worker-1")
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	steps, err := store.InsertPlannedSteps(db, job.ID, []models.PlannedStep{{Title: "Background", ToolHint: "search"}})
	require.NoError(t, err)
	require.NoError(t, store.StartStep(db, steps[0].ID))

	_, err = db.Exec(`
		UPDATE jobs SET started_at = datetime('now', '-2 hours'), heartbeat_at = datetime('now', '-2 hours'),
		                updated_at = datetime('now', '-2 hours')
		WHERE id = ?
	`, job.ID)
	require.NoError(t, err)

	sched := New(db, nil, app.Settings{Rescue: app.RescueSettings{
		StartSeconds:     60,
		HeartbeatSeconds: 60,
		GraceSeconds:     0,
	}}, "test-worker")

	sched.sweepIfDue()

	got, err := store.GetJob(db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Empty(t, got.ClaimedBy)

	gotSteps, err := store.ListSteps(db, job.ID)
	require.NoError(t, err)
	require.Len(t, gotSteps, 1)
	assert.Equal(t, models.StepStatusPending, gotSteps[0].Status)
}
