package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

func TestLinkifyCitations_RewritesMarkersToAnchors(t *testing.T) {
	got := linkifyCitations("See [1] and [12] for details.")
	assert.Equal(t, "See [1](#ref-1) and [12](#ref-12) for details.", got)
}

func TestRenderReferences_EmptyWhenNoEntries(t *testing.T) {
	assert.Equal(t, "", renderReferences(nil))
}

func TestRenderReferences_ListsInCitationOrder(t *testing.T) {
	entries := []*models.LedgerEntry{
		{CitationNumber: 1, Title: "Go Spec", URL: "https://go.dev/ref/spec"},
		{CitationNumber: 2, Title: "Go Blog", URL: "https://go.dev/blog"},
	}
	got := renderReferences(entries)
	assert.Contains(t, got, `1. <a id="ref-1"></a>[Go Spec](https://go.dev/ref/spec)`)
	assert.Contains(t, got, `2. <a id="ref-2"></a>[Go Blog](https://go.dev/blog)`)
}

func TestBackfillLedgerFromSources_PopulatesFromNoteSourcesInOrder(t *testing.T) {
	exec, db := newTestExecutor(t, gateway.EndpointConfig{})
	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	note, err := store.InsertNote(db, &models.Note{JobID: job.ID, Role: models.NoteRolePageSummary, Content: "n1"})
	require.NoError(t, err)
	_, err = store.InsertSource(db, &models.Source{NoteID: note.ID, URL: "https://a.example", Title: "A"})
	require.NoError(t, err)

	require.NoError(t, exec.backfillLedgerFromSources(job.ID))

	entries, err := store.ListLedgerEntries(db, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].CitationNumber)
	assert.Equal(t, "https://a.example", entries[0].URL)
}

func TestBackfillLedgerFromSources_NoOpWhenLedgerAlreadyPopulated(t *testing.T) {
	exec, db := newTestExecutor(t, gateway.EndpointConfig{})
	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	_, err = store.AssignCitation(db, job.ID, "existing-hash", "Existing", "https://existing.example")
	require.NoError(t, err)

	note, err := store.InsertNote(db, &models.Note{JobID: job.ID, Role: models.NoteRolePageSummary, Content: "n1"})
	require.NoError(t, err)
	_, err = store.InsertSource(db, &models.Source{NoteID: note.ID, URL: "https://b.example", Title: "B"})
	require.NoError(t, err)

	require.NoError(t, exec.backfillLedgerFromSources(job.ID))

	entries, err := store.ListLedgerEntries(db, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://existing.example", entries[0].URL)
}

func TestFinalize_WritesMarkdownArtifactAndLeavesPDFDOCXBlank(t *testing.T) {
	exec, db := newTestExecutor(t, gateway.EndpointConfig{})
	job, err := store.CreateJob(db, "q", models.JobOptions{}, requiredMetadata())
	require.NoError(t, err)

	note, err := store.InsertNote(db, &models.Note{JobID: job.ID, Role: models.NoteRolePageSummary, Content: "n1"})
	require.NoError(t, err)
	_, err = store.InsertSource(db, &models.Source{NoteID: note.ID, URL: "https://a.example", Title: "A"})
	require.NoError(t, err)

	report, assets, err := exec.finalize(context.Background(), job.ID, "Findings reference [1].")
	require.NoError(t, err)

	assert.Contains(t, report, "[1](#ref-1)")
	assert.Contains(t, report, "## References")
	assert.NotEmpty(t, assets.MarkdownURL)
	assert.Empty(t, assets.PDFURL)
	assert.Empty(t, assets.DOCXURL)
	assert.NotEmpty(t, assets.Checksums["markdown"])
}
