package pipeline

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func requiredMetadata() map[string]string {
	return map[string]string{
		"time_horizon":        "1 week",
		"region_focus":        "global",
		"data_modalities":     "text",
		"integration_targets": "none",
		"quality_constraints": "none",
	}
}

func TestCheckControl_PassesThroughRunningJob(t *testing.T) {
	db := setupTestDB(t)

	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)
	_, err = store.ClaimNextJob(db, "worker-1")
	require.NoError(t, err)

	got, err := checkControl(db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
}

func TestCheckControl_RaisesHaltOnPause(t *testing.T) {
	db := setupTestDB(t)

	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)
	_, err = store.ClaimNextJob(db, "worker-1")
	require.NoError(t, err)
	_, err = store.RequestControl(db, job.ID, models.ControlPaused)
	require.NoError(t, err)

	_, err = checkControl(db, job.ID)
	require.Error(t, err)

	var halt *controlHalt
	require.ErrorAs(t, err, &halt)
	assert.Equal(t, models.ControlPaused, halt.kind)
}
