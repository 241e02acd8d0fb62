package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

func TestRunDiagnostics_CleanDBReportsNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	diags, err := RunDiagnostics(db, 120, 90, 3600)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestRunDiagnostics_StaleRunningJob(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	job, err := CreateJob(db, "stale heartbeat job", models.JobOptions{}, map[string]string{
		"time_horizon":        "1 week",
		"region_focus":        "global",
		"data_modalities":     "text",
		"integration_targets": "none",
		"quality_constraints": "none",
	})
	require.NoError(t, err)
	claimed, err := ClaimNextJob(db, "worker-1")
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	_, err = db.Exec(`
		UPDATE jobs SET created_at = datetime('now', '-1 hour'), started_at = datetime('now', '-1 hour'),
		                heartbeat_at = datetime('now', '-1 hour')
		WHERE id = ?
	`, job.ID)
	require.NoError(t, err)

	diags, err := RunDiagnostics(db, 120, 90, 3600)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "STALE_RUNNING_JOB", diags[0].Code)
	assert.Equal(t, "warning", diags[0].Level)
}

func TestRunDiagnostics_OrphanedRunningStep(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	job, err := CreateJob(db, "orphaned step job", models.JobOptions{}, nil)
	require.NoError(t, err)
	_, err = ClaimNextJob(db, "worker-1")
	require.NoError(t, err)

	steps, err := InsertPlannedSteps(db, job.ID, []models.PlannedStep{{Title: "search"}})
	require.NoError(t, err)
	require.NoError(t, StartStep(db, steps[0].ID))

	// The job finished (or was rescued) without the step itself being closed out.
	_, err = db.Exec(`UPDATE jobs SET status = 'completed' WHERE id = ?`, job.ID)
	require.NoError(t, err)

	diags, err := RunDiagnostics(db, 120, 90, 3600)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "ORPHANED_RUNNING_STEP", diags[0].Code)
}

func TestRunDiagnostics_LedgerNumberingGap(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	job, err := CreateJob(db, "ledger gap job", models.JobOptions{}, nil)
	require.NoError(t, err)

	_, err = AssignCitation(db, job.ID, "hash-1", "Source One", "https://example.com/1")
	require.NoError(t, err)

	// Insert a second entry directly, skipping citation_number 2, to simulate
	// a numbering gap that should never arise through AssignCitation itself.
	_, err = db.Exec(`
		INSERT INTO citation_ledger_entries (job_id, source_hash, citation_number, title, url)
		VALUES (?, ?, ?, ?, ?)
	`, job.ID, "hash-2", 3, "Source Two", "https://example.com/2")
	require.NoError(t, err)

	diags, err := RunDiagnostics(db, 120, 90, 3600)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "LEDGER_NUMBERING_GAP", diags[0].Code)
	assert.Equal(t, "error", diags[0].Level)
}
