package store

import (
	"errors"
	"strconv"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained for
// callers that reference store.RecoverableError directly.
type RecoverableError = models.RecoverableError

// ErrJobClaimLost is the sentinel a *JobClaimLostError wraps, for errors.Is checks.
var ErrJobClaimLost = errors.New("job claim lost to another worker or rescue sweep")

// JobClaimLostError replaces ErrJobClaimLost with structured context. Returned
// by Heartbeat when its update affected zero rows — another worker, or the
// rescue sweeper, already moved the job out of running. ClaimNextJob does not
// return it; a lost claim there yields (nil, nil).
type JobClaimLostError struct {
	JobID string
}

func (e *JobClaimLostError) Error() string { return "job claim lost to another worker or rescue sweep" }
func (e *JobClaimLostError) ErrorCode() string { return "JOB_CLAIM_LOST" }
func (e *JobClaimLostError) Context() map[string]string {
	return map[string]string{"job_id": e.JobID}
}
func (e *JobClaimLostError) SuggestedAction() string {
	return "skip this job; it is owned by another worker or was already rescued"
}
func (e *JobClaimLostError) Is(target error) bool { return target == ErrJobClaimLost }

// VersionConflictError carries structured context for ErrVersionConflict
// (declared in retry.go).
// Raised by any optimistic-concurrency UPDATE ... WHERE version = ? that
// affects zero rows.
type VersionConflictError struct {
	Entity  string
	ID      string
	Version int
}

func (e *VersionConflictError) Error() string {
	return "version conflict: record was modified by another process"
}
func (e *VersionConflictError) ErrorCode() string { return "VERSION_CONFLICT" }
func (e *VersionConflictError) Context() map[string]string {
	return map[string]string{
		"entity":  e.Entity,
		"id":      e.ID,
		"version": strconv.Itoa(e.Version),
	}
}
func (e *VersionConflictError) SuggestedAction() string {
	return "reload the record and retry the operation"
}
func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// LedgerRaceError describes two concurrent AssignCitation calls racing to
// insert the same (job_id, citation_number) slot (spec §4.2 step 5, §9).
// AssignCitation itself retries such races internally and does not return
// this type.
type LedgerRaceError struct {
	JobID      string
	SourceHash string
}

func (e *LedgerRaceError) Error() string { return "citation ledger insert lost a numbering race" }
func (e *LedgerRaceError) ErrorCode() string { return "LEDGER_RACE" }
func (e *LedgerRaceError) Context() map[string]string {
	return map[string]string{"job_id": e.JobID, "source_hash": e.SourceHash}
}
func (e *LedgerRaceError) SuggestedAction() string {
	return "retry assignCitation: re-read max(citation_number) for the job and insert again"
}

// IdempotencyInProgressError replaces ErrIdempotencyInProgress with structured context.
type IdempotencyInProgressError struct {
	AgentName string
	RequestID string
	Command   string
}

func (e *IdempotencyInProgressError) Error() string { return "idempotency in progress" }
func (e *IdempotencyInProgressError) ErrorCode() string { return "IDEMPOTENCY_IN_PROGRESS" }
func (e *IdempotencyInProgressError) Context() map[string]string {
	return map[string]string{
		"agent_name": e.AgentName,
		"request_id": e.RequestID,
		"command":    e.Command,
	}
}
func (e *IdempotencyInProgressError) SuggestedAction() string {
	return "wait and retry, or use a new request id"
}
func (e *IdempotencyInProgressError) Is(target error) bool {
	return target == ErrIdempotencyInProgress
}
