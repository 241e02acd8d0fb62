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

func newSynthSettings(longform bool) app.Settings {
	return app.Settings{
		MaxLLMTokens:     500,
		MaxContext:       4000,
		MaxNotesForSynth: 10,
		Features:         app.FeatureSettings{LongformEnabled: longform},
	}
}

func TestSynthesizeAndFinalize_Classic_BackfillsLedgerFromSources(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "Go is a compiled language [1]."})
	}))
	defer chat.Close()

	exec, db := newTestExecutor(t, gateway.EndpointConfig{ChatURL: chat.URL})
	exec.Settings = newSynthSettings(false)

	job, err := store.CreateJob(db, "What is Go?", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	note, err := store.InsertNote(db, &models.Note{JobID: job.ID, Role: models.NoteRolePageSummary, Content: "Go is compiled."})
	require.NoError(t, err)
	_, err = store.InsertSource(db, &models.Source{NoteID: note.ID, URL: "https://go.dev", Title: "Go"})
	require.NoError(t, err)

	report, assets, err := exec.synthesizeAndFinalize(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Contains(t, report, "[1](#ref-1)")
	assert.Contains(t, report, "## References")
	assert.NotEmpty(t, assets.MarkdownURL)

	entries, err := store.ListLedgerEntries(db, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://go.dev", entries[0].URL)
}

func TestSynthesizeLongform_RendersEverySectionAndPersistsDrafts(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "section text [1]"})
	}))
	defer chat.Close()

	exec, db := newTestExecutor(t, gateway.EndpointConfig{ChatURL: chat.URL})
	exec.Settings = newSynthSettings(true)

	job, err := store.CreateJob(db, "What is Go?", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	note, err := store.InsertNote(db, &models.Note{JobID: job.ID, Role: models.NoteRolePageSummary, Content: "Go is compiled."})
	require.NoError(t, err)
	_, err = store.InsertSource(db, &models.Source{NoteID: note.ID, URL: "https://go.dev", Title: "Go"})
	require.NoError(t, err)

	notes, err := store.ListNotesForJob(db, job.ID)
	require.NoError(t, err)

	draft, err := exec.synthesizeLongform(context.Background(), job.ID, notes)
	require.NoError(t, err)
	assert.NotEmpty(t, draft)

	drafts, err := store.ListSectionDrafts(db, job.ID)
	require.NoError(t, err)
	require.Len(t, drafts, len(models.SectionOrder))
	for _, sd := range drafts {
		assert.Equal(t, models.SectionStatusCompleted, sd.Status)
	}
}

func TestApplyCritic_DegradesGracefullyOnUnparseableJSON(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "not json"})
	}))
	defer chat.Close()

	exec, db := newTestExecutor(t, gateway.EndpointConfig{ChatURL: chat.URL})
	exec.Settings = newSynthSettings(false)

	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	got, err := exec.applyCritic(context.Background(), job.ID, "original draft", nil)
	require.NoError(t, err)
	assert.Equal(t, "original draft", got)
}

func TestApplyCritic_AppendsLimitationsAndRecordsNote(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"text": `{"issues":["missing recency"],"follow_up":["check 2026 sources"],"limitations":"Coverage is thin."}`,
		})
	}))
	defer chat.Close()

	exec, db := newTestExecutor(t, gateway.EndpointConfig{ChatURL: chat.URL})
	exec.Settings = newSynthSettings(false)

	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	got, err := exec.applyCritic(context.Background(), job.ID, "original draft", nil)
	require.NoError(t, err)
	assert.Contains(t, got, "original draft")
	assert.Contains(t, got, "Coverage is thin.")

	notes, err := store.ListNotesForJob(db, job.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NoteRoleCriticNote, notes[0].Role)
}
