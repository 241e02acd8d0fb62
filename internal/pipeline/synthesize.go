package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oremus-labs/research-orchestrator/internal/contextpack"
	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// sectionNoteCap bounds how many notes feed a single longform section. The
// configuration surface (spec §6) only names a job-wide max_notes_for_synth;
// this is a smaller per-section slice of that budget so no one section
// crowds out the others.
const sectionNoteCap = 15

type criticOutput struct {
	Issues      []string `json:"issues"`
	FollowUp    []string `json:"follow_up"`
	Limitations string   `json:"limitations"`
}

// synthesizeAndFinalize runs the Synthesize and Finalize phases back to
// back, performing a control check beforehand and between sections (spec
// §4.1: "control check between steps and between section drafts").
func (e *Executor) synthesizeAndFinalize(ctx context.Context, jobID string) (string, models.ReportAssets, error) {
	if _, err := checkControl(e.DB, jobID); err != nil {
		return "", models.ReportAssets{}, err
	}

	notes, err := store.ListNotesForJob(e.DB, jobID)
	if err != nil {
		return "", models.ReportAssets{}, fmt.Errorf("load notes: %w", err)
	}

	var draft string
	if e.Settings.Features.LongformEnabled {
		draft, err = e.synthesizeLongform(ctx, jobID, notes)
	} else {
		draft, err = e.synthesizeClassic(ctx, notes)
	}
	if err != nil {
		return "", models.ReportAssets{}, err
	}

	draft, err = e.applyCritic(ctx, jobID, draft, notes)
	if err != nil {
		return "", models.ReportAssets{}, err
	}

	return e.finalize(ctx, jobID, draft)
}

// synthesizeClassic packs all notes under budget and runs a single synthesis
// call (spec §4.1 Synthesize phase, "Classic" mode).
func (e *Executor) synthesizeClassic(ctx context.Context, notes []*models.Note) (string, error) {
	budget := contextpack.SynthesisBudget(e.Settings.MaxContext, e.Settings.MaxLLMTokens)
	packed := contextpack.Pack(notes, budget, e.Settings.MaxNotesForSynth)

	instruction := fmt.Sprintf(
		"Write a cited research report answering the job's question from these notes. "+
			"Reference sources inline as [n] where n is the note's position below.\n%s",
		renderNotesForPrompt(packed),
	)

	text, err := e.Gateway.Chat(ctx, []gateway.Message{{Role: "user", Content: instruction}}, gateway.ChatOptions{
		MaxTokens: e.Settings.MaxLLMTokens,
	})
	if err != nil {
		return e.fallbackDraft(packed), nil
	}

	// Classic mode has no per-section ledger assignment step; the ledger is
	// built from the notes' sources in creation order at finalize time
	// (spec §4.2 "Fallback: if the ledger is empty at finalize time").
	return text, nil
}

// synthesizeLongform renders each fixed section from its allowed note roles,
// assigning citations as it goes, and persists each as a Section Draft
// (spec §4.1 Synthesize phase, "Longform" mode; §4.2 rendering).
func (e *Executor) synthesizeLongform(ctx context.Context, jobID string, notes []*models.Note) (string, error) {
	var sections []string
	for _, key := range models.SectionOrder {
		if _, err := checkControl(e.DB, jobID); err != nil {
			return "", err
		}

		allowed := models.SectionAllowedRoles[key]
		candidates := contextpack.FilterByRole(notes, allowed)
		budget := contextpack.SynthesisBudget(e.Settings.MaxContext, e.Settings.MaxLLMTokens) / len(models.SectionOrder)
		packed := contextpack.Pack(candidates, budget, sectionNoteCap)

		content, citationMap, err := e.renderSection(ctx, jobID, key, packed)
		if err != nil {
			return "", err
		}

		if err := store.UpsertSectionDraft(e.DB, &models.SectionDraft{
			JobID:       jobID,
			SectionKey:  key,
			Status:      models.SectionStatusCompleted,
			Tokens:      contextpack.EstimateTokens(content),
			Content:     content,
			CitationMap: citationMap,
		}); err != nil {
			return "", fmt.Errorf("persist section draft %s: %w", key, err)
		}

		sections = append(sections, content)
	}

	return strings.Join(sections, "\n\n"), nil
}

func (e *Executor) renderSection(ctx context.Context, jobID string, key models.SectionKey, notes []*models.Note) (string, []models.CitationMapEntry, error) {
	instruction := fmt.Sprintf(
		"Write the %q section of a research report from these notes. "+
			"Reference sources inline as [n] where n is the note's position below.\n%s",
		key, renderNotesForPrompt(notes),
	)

	text, err := e.Gateway.Chat(ctx, []gateway.Message{{Role: "user", Content: instruction}}, gateway.ChatOptions{
		MaxTokens: e.Settings.MaxLLMTokens,
	})
	if err != nil {
		text = e.fallbackDraft(notes)
	}

	var citationMap []models.CitationMapEntry
	for _, n := range notes {
		sources, err := sourcesForNote(e.DB, n.ID)
		if err != nil || len(sources) == 0 {
			continue
		}
		var numbers []int
		for _, src := range sources {
			hash := models.SourceHash(src.URL, src.Title, src.RawStorageURL)
			num, err := store.AssignCitation(e.DB, jobID, hash, src.Title, src.URL)
			if err != nil {
				continue
			}
			numbers = append(numbers, num)
		}
		if len(numbers) > 0 {
			citationMap = append(citationMap, models.CitationMapEntry{NoteID: n.ID, CitationNumbers: numbers})
		}
	}

	return text, citationMap, nil
}

func sourcesForNote(db *sql.DB, noteID int64) ([]*models.Source, error) {
	return store.ListSourcesForNote(db, noteID)
}

func renderNotesForPrompt(notes []*models.Note) string {
	var b strings.Builder
	for i, n := range notes {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, n.Content)
	}
	return b.String()
}

func (e *Executor) fallbackDraft(notes []*models.Note) string {
	var b strings.Builder
	b.WriteString("Synthesis degraded to a heuristic concatenation of evidence notes.\n\n")
	for i, n := range notes {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, n.Content)
	}
	return b.String()
}

// applyCritic invokes the critic language-model call and appends a
// Limitations block when it has something to say (spec §4.1 "Critic and
// cross-job recording").
func (e *Executor) applyCritic(ctx context.Context, jobID, draft string, notes []*models.Note) (string, error) {
	packed := contextpack.Pack(notes, contextpack.SynthesisBudget(e.Settings.MaxContext, e.Settings.MaxLLMTokens), e.Settings.MaxNotesForSynth)

	raw, _ := json.Marshal(packed)
	instruction := fmt.Sprintf(
		"Critique this draft against the supporting notes. "+
			`Return strict JSON {"issues":[...],"follow_up":[...],"limitations":"..."}.`+
			"\nDraft:\n%s\nNotes:\n%s",
		draft, string(raw),
	)

	text, err := e.Gateway.Chat(ctx, []gateway.Message{{Role: "user", Content: instruction}}, gateway.ChatOptions{})
	if err != nil {
		return draft, nil
	}

	var critique criticOutput
	if jsonErr := json.Unmarshal([]byte(text), &critique); jsonErr != nil {
		return draft, nil
	}

	if err := e.recordCriticNote(jobID, critique); err != nil {
		return draft, err
	}

	if critique.Limitations == "" {
		return draft, nil
	}
	return draft + "\n\n## Limitations & Critic Notes\n" + critique.Limitations, nil
}

func (e *Executor) recordCriticNote(jobID string, critique criticOutput) error {
	if len(critique.Issues) == 0 && len(critique.FollowUp) == 0 && critique.Limitations == "" {
		return nil
	}
	content, err := json.Marshal(critique)
	if err != nil {
		return fmt.Errorf("marshal critic output: %w", err)
	}
	_, err = store.InsertNote(e.DB, &models.Note{
		JobID:      jobID,
		Role:       models.NoteRoleCriticNote,
		Importance: models.DefaultImportance,
		TokenCount: contextpack.EstimateTokens(string(content)),
		Content:    string(content),
	})
	if err != nil {
		return fmt.Errorf("insert critic note: %w", err)
	}
	return nil
}
