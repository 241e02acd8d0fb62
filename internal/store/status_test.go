package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

func TestGetStatusCounts_SingleAtomicQuery(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Empty DB should return all zeros.
	counts, err := GetStatusCounts(db)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Jobs.Queued)
	assert.Equal(t, 0, counts.Jobs.Running)
	assert.Equal(t, 0, counts.Jobs.Completed)
	assert.Equal(t, 0, counts.Steps.Pending)
	assert.Equal(t, 0, counts.Notes)
	assert.Equal(t, 0, counts.Sources)
	assert.Equal(t, 0, counts.Ledger)

	job, err := CreateJob(db, "what is the capital of France", models.JobOptions{}, map[string]string{
		"time_horizon":        "1 week",
		"region_focus":        "global",
		"data_modalities":     "text",
		"integration_targets": "none",
		"quality_constraints": "none",
	})
	require.NoError(t, err)

	claimed, err := ClaimNextJob(db, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)

	steps, err := InsertPlannedSteps(db, job.ID, []models.PlannedStep{
		{Title: "search for capital city"},
		{Title: "confirm with a second source"},
	})
	require.NoError(t, err)
	require.Len(t, steps, 2)

	require.NoError(t, StartStep(db, steps[0].ID))
	require.NoError(t, CompleteStep(db, steps[0].ID, models.StepStatusCompleted, models.StepResult{}))

	note, err := InsertNote(db, &models.Note{JobID: job.ID, Role: models.NoteRolePageSummary, Content: "Paris is the capital of France"})
	require.NoError(t, err)
	_, err = InsertSource(db, &models.Source{NoteID: note.ID, URL: "https://example.com/paris", Title: "Paris"})
	require.NoError(t, err)

	_, err = AssignCitation(db, job.ID, "hash-paris", "Paris", "https://example.com/paris")
	require.NoError(t, err)

	counts, err = GetStatusCounts(db)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Jobs.Running, "running jobs")
	assert.Equal(t, 0, counts.Jobs.Queued, "queued jobs")
	assert.Equal(t, 1, counts.Steps.Completed, "completed steps")
	assert.Equal(t, 1, counts.Steps.Pending, "pending steps")
	assert.Equal(t, 1, counts.Notes, "notes count")
	assert.Equal(t, 1, counts.Sources, "sources count")
	assert.Equal(t, 1, counts.Ledger, "ledger count")
}
