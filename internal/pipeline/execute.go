package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/artifact"
	"github.com/oremus-labs/research-orchestrator/internal/contextpack"
	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// maxFetchResults bounds how many top search hits a step fetches (spec §4.1
// Execute phase: "fetch at most three top results").
const maxFetchResults = 3

type summarizerOutput struct {
	PageNotes   []pageNoteOutput `json:"page_notes"`
	StepSummary string           `json:"step_summary"`
}

type pageNoteOutput struct {
	Content    string `json:"content"`
	Importance int    `json:"importance"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

// fetchedDoc pairs a fetched document with the Artifact Store URL its raw
// content was written under, so downstream Sources can cite where the raw
// evidence lives (spec §3 Source, §6).
type fetchedDoc struct {
	gateway.FetchResult
	RawStorageURL string
}

// snippetLen bounds the excerpt copied onto a Source from its fetched
// document (spec §3 Source: snippet is a short excerpt, not the full text).
const snippetLen = 280

// executeStep runs one step: search, fetch, summarize, and persist Notes,
// Sources, and the step's terminal status (spec §4.1 Execute phase).
func (e *Executor) executeStep(ctx context.Context, jobID string, step *models.Step) error {
	if err := store.StartStep(e.DB, step.ID); err != nil {
		return fmt.Errorf("start step: %w", err)
	}

	job, err := store.GetJob(e.DB, jobID)
	if err != nil {
		return fmt.Errorf("load job for step query: %w", err)
	}

	query := fmt.Sprintf("%s :: %s", job.Question, step.Objective)
	results, err := e.Gateway.Search(ctx, query, step.ToolHint)
	if err != nil || len(results) == 0 {
		return store.CompleteStep(e.DB, step.ID, models.StepStatusPartial, models.StepResult{Reason: "No search results"})
	}
	if len(results) > maxFetchResults {
		results = results[:maxFetchResults]
	}

	docs := e.fetchDocuments(ctx, jobID, step.StepOrder, results)
	if len(docs) == 0 {
		return store.CompleteStep(e.DB, step.ID, models.StepStatusPartial, models.StepResult{Reason: "No search results"})
	}

	summary := e.summarizeDocs(ctx, step, docs)
	sourceCount, err := e.persistPageNotes(ctx, jobID, step.ID, summary.PageNotes, docs)
	if err != nil {
		return err
	}

	if summary.StepSummary != "" {
		if _, err := store.InsertNote(e.DB, &models.Note{
			JobID:      jobID,
			StepID:     step.ID,
			Role:       models.NoteRoleStepSummary,
			Importance: models.DefaultImportance,
			TokenCount: contextpack.EstimateTokens(summary.StepSummary),
			Content:    summary.StepSummary,
		}); err != nil {
			return fmt.Errorf("insert step summary note: %w", err)
		}
	}

	return store.CompleteStep(e.DB, step.ID, models.StepStatusCompleted, models.StepResult{SourceCount: sourceCount})
}

// fetchDocuments fetches each search hit, storing raw content in the
// Artifact Store under raw/{jobId}/{stepOrder}-{i}.json (spec §4.1, §6). A
// per-document fetch failure is skipped, never fatal to the step.
func (e *Executor) fetchDocuments(ctx context.Context, jobID string, stepOrder int, results []gateway.SearchResult) []fetchedDoc {
	var docs []fetchedDoc
	for i, r := range results {
		doc, err := e.Gateway.Fetch(ctx, r.URL)
		if err != nil {
			continue
		}
		if doc.Title == "" {
			doc.Title = r.Title
		}
		fd := fetchedDoc{FetchResult: doc}

		if e.Artifacts != nil {
			if raw, marshalErr := json.Marshal(doc); marshalErr == nil {
				if url, putErr := e.Artifacts.Put(ctx, artifact.RawDocumentKey(jobID, stepOrder, i), raw, "application/json"); putErr == nil {
					fd.RawStorageURL = url
				}
			}
		}
		docs = append(docs, fd)
	}
	return docs
}

func (e *Executor) persistPageNotes(ctx context.Context, jobID, stepID string, notes []pageNoteOutput, docs []fetchedDoc) (int, error) {
	count := 0
	for i, pn := range notes {
		note, err := store.InsertNote(e.DB, &models.Note{
			JobID:      jobID,
			StepID:     stepID,
			Role:       models.NoteRolePageSummary,
			Importance: pn.Importance,
			TokenCount: contextpack.EstimateTokens(pn.Content),
			Content:    pn.Content,
			SourceURL:  pn.URL,
		})
		if err != nil {
			return count, fmt.Errorf("insert page note: %w", err)
		}

		url, title, rawStorageURL, snippet := pn.URL, pn.Title, "", ""
		if url == "" && i < len(docs) {
			url, title = docs[i].URL, docs[i].Title
		}
		if i < len(docs) {
			rawStorageURL = docs[i].RawStorageURL
			snippet = docs[i].Content
		}
		if len(snippet) > snippetLen {
			snippet = snippet[:snippetLen]
		}
		if _, err := store.InsertSource(e.DB, &models.Source{
			NoteID:        note.ID,
			URL:           url,
			Title:         title,
			Snippet:       snippet,
			RawStorageURL: rawStorageURL,
		}); err != nil {
			return count, fmt.Errorf("insert source: %w", err)
		}

		e.indexWarmNote(ctx, jobID, note)
		count++
	}
	return count, nil
}

// indexWarmNote embeds and upserts a note into the vector collaborator so
// future jobs can warm-start their planner (spec §4.1 Execute phase, §6).
// An embedding failure degrades silently (spec §9).
func (e *Executor) indexWarmNote(ctx context.Context, jobID string, note *models.Note) {
	if e.Vectors == nil {
		return
	}
	vec, err := e.Gateway.Embed(ctx, note.Content)
	if err != nil {
		return
	}
	_ = e.Vectors.Upsert(ctx, fmt.Sprintf("note_%d", note.ID), vec, map[string]any{
		"job_id":     jobID,
		"role":       string(note.Role),
		"importance": float64(note.Importance),
		"content":    note.Content,
	})
}

func (e *Executor) summarizeDocs(ctx context.Context, step *models.Step, docs []fetchedDoc) summarizerOutput {
	raw, _ := json.Marshal(docs)
	instruction := fmt.Sprintf(
		"Summarize these fetched documents for the research step %q. "+
			`Return strict JSON {"page_notes":[{"content":"...","importance":1-5,"url":"...","title":"..."}],"step_summary":"..."}.`+
			"\nDocuments:\n%s",
		step.Title, string(raw),
	)

	text, err := e.Gateway.Chat(ctx, []gateway.Message{{Role: "user", Content: instruction}}, gateway.ChatOptions{})
	if err != nil {
		return heuristicSummary(docs)
	}

	var out summarizerOutput
	if jsonErr := json.Unmarshal([]byte(text), &out); jsonErr != nil || len(out.PageNotes) == 0 {
		return heuristicSummary(docs)
	}
	for i := range out.PageNotes {
		out.PageNotes[i].Importance = models.ClampImportance(out.PageNotes[i].Importance)
	}
	return out
}

// heuristicSummary degrades gracefully when the summarizer's JSON output
// cannot be parsed (spec §4.1, §7: "heuristic page summaries").
func heuristicSummary(docs []fetchedDoc) summarizerOutput {
	const heuristicExcerptLen = 500
	out := summarizerOutput{}
	for _, d := range docs {
		content := d.Content
		if len(content) > heuristicExcerptLen {
			content = content[:heuristicExcerptLen]
		}
		out.PageNotes = append(out.PageNotes, pageNoteOutput{
			Content:    content,
			Importance: models.DefaultImportance,
			URL:        d.URL,
			Title:      d.Title,
		})
	}
	return out
}
