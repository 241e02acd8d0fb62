package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/research-orchestrator/internal/app"
	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

func TestPlan_UnparseableChatOutput_FallsBackToDefaultStep(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "not json"})
	}))
	defer chat.Close()

	exec, db := newTestExecutor(t, gateway.EndpointConfig{ChatURL: chat.URL})
	job, err := store.CreateJob(db, "q", models.JobOptions{MaxSteps: 3}, requiredMetadata())
	require.NoError(t, err)

	steps, err := exec.plan(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, DefaultFallbackStep.Title, steps[0].Title)
	assert.Equal(t, 1, steps[0].StepOrder)
}

func TestPlan_ValidChatOutput_PersistsPlannedStepsInOrder(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"text": `[{"title":"First","tool_hint":"search"},{"title":"Second","tool_hint":"workflow"}]`,
		})
	}))
	defer chat.Close()

	exec, db := newTestExecutor(t, gateway.EndpointConfig{ChatURL: chat.URL})
	job, err := store.CreateJob(db, "q", models.JobOptions{MaxSteps: 3}, requiredMetadata())
	require.NoError(t, err)

	steps, err := exec.plan(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "First", steps[0].Title)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.Equal(t, "Second", steps[1].Title)
	assert.Equal(t, 2, steps[1].StepOrder)
}

func TestPlan_TruncatesToMaxSteps(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"text": `[{"title":"A"},{"title":"B"},{"title":"C"}]`,
		})
	}))
	defer chat.Close()

	exec, db := newTestExecutor(t, gateway.EndpointConfig{ChatURL: chat.URL})
	job, err := store.CreateJob(db, "q", models.JobOptions{MaxSteps: 1}, requiredMetadata())
	require.NoError(t, err)

	steps, err := exec.plan(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "A", steps[0].Title)
}

func TestAssemblePriorContext_IncludesOwnStepSummaries(t *testing.T) {
	exec, db := newTestExecutor(t, gateway.EndpointConfig{})
	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	_, err = store.InsertNote(db, &models.Note{
		JobID:   job.ID,
		Role:    models.NoteRoleStepSummary,
		Content: "earlier finding about Go",
	})
	require.NoError(t, err)

	got, err := store.GetJob(db, job.ID)
	require.NoError(t, err)

	exec.Settings = app.Settings{}
	ctx := context.Background()
	prior := exec.assemblePriorContext(ctx, got)
	assert.Contains(t, prior, "earlier finding about Go")
}
