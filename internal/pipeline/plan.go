package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/gateway"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
	"github.com/oremus-labs/research-orchestrator/internal/vectorstore"
)

// DefaultFallbackStep is persisted when the planner's output cannot be
// parsed (spec §4.1 Plan phase, §8 Scenario S6).
var DefaultFallbackStep = models.PlannedStep{
	Title:    "Perform initial web research",
	ToolHint: "searxng",
}

// plan invokes the planner language-model call, parameterized by max_steps
// and prior context (this job's own summaries plus warm cross-job notes),
// and persists the resulting steps at iteration=0 (spec §4.1 Plan phase).
func (e *Executor) plan(ctx context.Context, jobID string) ([]*models.Step, error) {
	job, err := store.GetJob(e.DB, jobID)
	if err != nil {
		return nil, err
	}

	priorContext := e.assemblePriorContext(ctx, job)

	maxSteps := job.Options.MaxSteps
	if maxSteps <= 0 {
		maxSteps = e.Settings.MaxSteps
	}

	planned := e.invokePlanner(ctx, job, priorContext, maxSteps)
	if maxSteps > 0 && len(planned) > maxSteps {
		planned = planned[:maxSteps]
	}

	return store.InsertPlannedSteps(e.DB, jobID, planned)
}

func (e *Executor) invokePlanner(ctx context.Context, job *models.Job, priorContext string, maxSteps int) []models.PlannedStep {
	instruction := fmt.Sprintf(
		"You are a research planner. Question: %s\nPrior context:\n%s\n"+
			"Return a strict JSON array of up to %d objects shaped "+
			`{"title":"...","tool_hint":"...","objective":"..."}.`,
		job.Question, priorContext, maxSteps,
	)

	text, err := e.Gateway.Chat(ctx, []gateway.Message{{Role: "user", Content: instruction}}, gateway.ChatOptions{
		MaxTokens: e.Settings.MaxLLMTokens,
	})
	if err != nil {
		return []models.PlannedStep{DefaultFallbackStep}
	}

	var planned []models.PlannedStep
	if jsonErr := json.Unmarshal([]byte(text), &planned); jsonErr != nil || len(planned) == 0 {
		return []models.PlannedStep{DefaultFallbackStep}
	}
	return planned
}

// assemblePriorContext concatenates this job's own step/cross-job summaries
// with "warm" archive notes retrieved from the vector collaborator (spec
// §4.1 Plan phase). A vector-store failure degrades silently (spec §9).
func (e *Executor) assemblePriorContext(ctx context.Context, job *models.Job) string {
	prior := e.ownJobSummaries(job.ID)
	prior += e.warmNotes(ctx, job)
	return prior
}

func (e *Executor) ownJobSummaries(jobID string) string {
	notes, err := store.ListNotesForJob(e.DB, jobID)
	if err != nil {
		return ""
	}
	var out string
	for _, n := range notes {
		if n.Role == models.NoteRoleStepSummary || n.Role == models.NoteRoleCrossJobSummary {
			out += n.Content + "\n"
		}
	}
	return out
}

func (e *Executor) warmNotes(ctx context.Context, job *models.Job) string {
	if e.Vectors == nil || e.Gateway == nil {
		return ""
	}
	vec, err := e.Gateway.Embed(ctx, job.Question)
	if err != nil {
		return ""
	}
	hits, err := e.Vectors.Search(ctx, vectorstore.SearchQuery{Vector: vec, Limit: e.Settings.WarmNotesLimit})
	if err != nil {
		return ""
	}

	var out string
	for _, h := range hits {
		importance, _ := h.Payload["importance"].(float64)
		if int(importance) < e.Settings.WarmImportanceMin {
			continue
		}
		content, _ := h.Payload["content"].(string)
		if content != "" {
			out += content + "\n"
		}
	}
	return out
}
