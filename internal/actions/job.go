// Package actions wraps store-layer job mutations with the idempotency
// ledger, so CLI commands that mutate a job commit their write and their
// idempotency record in one transaction (spec §5).
package actions

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// requesterID namespaces every idempotency key this CLI writes. The ledger's
// (agent_name, request_id) key was built for a multi-agent caller; this tool
// has exactly one caller, the operator's shell, so every command shares this
// constant and distinguishes attempts only by --request-id.
const requesterID = "cli"

// JobCreateIdempotent submits a research question once per request id. A
// retry with the same id replays the originally created job.
func JobCreateIdempotent(db *sql.DB, requestID, question string, options models.JobOptions, metadata map[string]string) (*models.Job, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}

	type idemResult struct {
		JobID string `json:"job_id"`
	}

	r, err := store.RunIdempotent(db, requesterID, requestID, "job.create", func(tx *sql.Tx) (idemResult, error) {
		id, err := store.CreateJobTx(tx, question, options, metadata)
		if err != nil {
			return idemResult{}, err
		}
		return idemResult{JobID: id}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return store.GetJob(db, r.JobID)
}

// JobClarifyIdempotent answers clarification keys once per request id,
// retrying on a lost CAS race against a concurrent control action.
func JobClarifyIdempotent(db *sql.DB, requestID, jobID string, answers map[string]string) (*models.Job, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}

	type idemResult struct {
		JobID string `json:"job_id"`
	}

	_, _, err := store.RunIdempotentWithRetry(
		db, requesterID, requestID, "job.clarify",
		3,
		func(err error) bool { return errors.Is(err, store.ErrVersionConflict) },
		func(tx *sql.Tx) (idemResult, error) {
			j, err := store.ApplyClarificationTx(tx, jobID, answers)
			if err != nil {
				return idemResult{}, err
			}
			return idemResult{JobID: j.ID}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("apply clarification: %w", err)
	}

	return store.GetJob(db, jobID)
}

// JobControlIdempotent records an operator-requested pause/cancel once per
// request id, retrying on a lost CAS race.
func JobControlIdempotent(db *sql.DB, requestID, jobID string, kind models.ControlKind) (*models.Job, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}

	type idemResult struct {
		JobID string `json:"job_id"`
	}

	_, _, err := store.RunIdempotentWithRetry(
		db, requesterID, requestID, "job.control."+string(kind),
		3,
		func(err error) bool { return errors.Is(err, store.ErrVersionConflict) },
		func(tx *sql.Tx) (idemResult, error) {
			j, err := store.RequestControlTx(tx, jobID, kind)
			if err != nil {
				return idemResult{}, err
			}
			return idemResult{JobID: j.ID}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("request job control: %w", err)
	}

	return store.GetJob(db, jobID)
}

// JobResumeIdempotent resumes a paused job once per request id, retrying on
// a lost CAS race.
func JobResumeIdempotent(db *sql.DB, requestID, jobID string) (*models.Job, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}

	type idemResult struct {
		JobID string `json:"job_id"`
	}

	_, _, err := store.RunIdempotentWithRetry(
		db, requesterID, requestID, "job.resume",
		3,
		func(err error) bool { return errors.Is(err, store.ErrVersionConflict) },
		func(tx *sql.Tx) (idemResult, error) {
			j, err := store.ResumeJobTx(tx, jobID)
			if err != nil {
				return idemResult{}, err
			}
			return idemResult{JobID: j.ID}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("resume job: %w", err)
	}

	return store.GetJob(db, jobID)
}
