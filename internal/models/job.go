package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a research job.
type JobStatus string

const (
	JobStatusQueued               JobStatus = "queued"
	JobStatusRunning               JobStatus = "running"
	JobStatusPaused                JobStatus = "paused"
	JobStatusCancelled             JobStatus = "cancelled"
	JobStatusCompleted             JobStatus = "completed"
	JobStatusError                 JobStatus = "error"
	JobStatusClarificationRequired JobStatus = "clarification_required"
)

// IsTerminal reports whether the executor treats a status as a stopping point.
// Paused and clarification_required are recoverable (the control plane can
// requeue them) but halt the executor just the same.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled, JobStatusPaused, JobStatusClarificationRequired:
		return true
	default:
		return false
	}
}

// IsHaltStatus reports whether status represents a cooperative-halt target
// observed at a control check (§4.1) rather than an executor-driven terminal.
func (s JobStatus) IsHaltStatus() bool {
	switch s {
	case JobStatusPaused, JobStatusCancelled, JobStatusClarificationRequired:
		return true
	default:
		return false
	}
}

// RequiredClarificationKeys are the five metadata keys the intake contract
// (spec §6) requires before a job may leave clarification_required.
var RequiredClarificationKeys = []string{
	"time_horizon",
	"region_focus",
	"data_modalities",
	"integration_targets",
	"quality_constraints",
}

// MissingClarificationKeys returns the subset of RequiredClarificationKeys
// not present (or blank) in metadata, preserving RequiredClarificationKeys order.
func MissingClarificationKeys(metadata map[string]string) []string {
	var missing []string
	for _, key := range RequiredClarificationKeys {
		if v, ok := metadata[key]; !ok || v == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// JobOptions holds job-scoped run parameters supplied at intake.
type JobOptions struct {
	Depth               string   `json:"depth,omitempty"`
	MaxSteps            int      `json:"max_steps,omitempty"`
	MaxDurationSeconds  int      `json:"max_duration_seconds,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

// ReportAssets describes rendered report artifacts produced at publication.
type ReportAssets struct {
	MarkdownURL string            `json:"markdown_url,omitempty"`
	PDFURL      string            `json:"pdf_url,omitempty"`
	DOCXURL     string            `json:"docx_url,omitempty"`
	Checksums   map[string]string `json:"checksums,omitempty"` // asset name -> sha256 hex
}

// Job is a single deep-research job (spec §3 Job).
type Job struct {
	ID            string            `json:"id"`
	Question      string            `json:"question"`
	Options       JobOptions        `json:"options"`
	Metadata      map[string]string `json:"metadata"`
	Status        JobStatus         `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	FinalReport   string            `json:"final_report,omitempty"`
	ReportAssets  *ReportAssets     `json:"report_assets,omitempty"`
	Error         string            `json:"error,omitempty"`
	// ControlRequested is set by an operator action (pause/cancel) while the
	// job is running; the executor observes it at the next control check and
	// transitions Status to match (spec §4.1, §7).
	ControlRequested ControlKind `json:"control_requested,omitempty"`
	ClaimedBy        string      `json:"claimed_by,omitempty"`
	Version          int         `json:"version"`
}

// NeedsClarification reports whether intake metadata satisfies §6's contract.
func (j *Job) NeedsClarification() bool {
	return len(MissingClarificationKeys(j.Metadata)) > 0
}

// JobOptions.Marshal and MarshalMetadata exist so store code can serialize the
// JSON columns without every caller re-importing encoding/json.
func (o JobOptions) Marshal() ([]byte, error) { return json.Marshal(o) }

func MarshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}
