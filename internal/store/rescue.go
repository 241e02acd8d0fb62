package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// RescueResult summarizes what one sweep pass did.
type RescueResult struct {
	RequeuedJobIDs []string
}

// staleJobCandidate is the slice of a running job's state the rescue
// threshold calculation needs.
type staleJobCandidate struct {
	id                 string
	hasSteps           bool
	createdAt          time.Time
	startedAt          time.Time
	lastHeartbeat      time.Time
	updatedAt          time.Time
	maxDurationSeconds int
}

// isStale evaluates spec §4.5's two rescue branches against now. The first
// branch catches a claimed job that never got as far as planning a single
// step; the second catches one that stopped heartbeating mid-run, with
// max_duration_seconds shortening the threshold for jobs on a tight budget
// (spec §5).
func (c staleJobCandidate) isStale(now time.Time, startSeconds, heartbeatSeconds, graceSeconds int) (bool, string) {
	if !c.hasSteps {
		base := c.createdAt
		if c.startedAt.After(base) {
			base = c.startedAt
		}
		if startSeconds > 0 && now.Sub(base) > time.Duration(startSeconds)*time.Second {
			return true, "start"
		}
		return false, ""
	}

	base := c.startedAt
	if c.lastHeartbeat.After(base) {
		base = c.lastHeartbeat
	}
	if c.updatedAt.After(base) {
		base = c.updatedAt
	}

	threshold := heartbeatSeconds
	if c.maxDurationSeconds > 0 {
		budget := c.maxDurationSeconds + graceSeconds
		if heartbeatSeconds <= 0 || budget < heartbeatSeconds {
			threshold = budget
		}
	}
	if threshold > 0 && now.Sub(base) > time.Duration(threshold)*time.Second {
		return true, "heartbeat"
	}
	return false, ""
}

// loadStaleJobCandidates gathers every running job's timestamps, options,
// and step-existence in one pass so the staleness decision below sees a
// consistent snapshot.
func loadStaleJobCandidates(tx *sql.Tx) ([]staleJobCandidate, error) {
	rows, err := tx.QueryContext(context.Background(), `
		SELECT j.id, j.options_json, j.created_at, j.started_at, j.heartbeat_at, j.updated_at,
		       EXISTS (SELECT 1 FROM steps s WHERE s.job_id = j.id)
		FROM jobs j
		WHERE j.status = 'running'
	`)
	if err != nil {
		return nil, fmt.Errorf("select running jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []staleJobCandidate
	for rows.Next() {
		var id, optionsJSON string
		var createdAt, updatedAt time.Time
		var startedAt, heartbeatAt sql.NullTime
		var hasSteps bool
		if err := rows.Scan(&id, &optionsJSON, &createdAt, &startedAt, &heartbeatAt, &updatedAt, &hasSteps); err != nil {
			return nil, fmt.Errorf("scan running job: %w", err)
		}

		var opts models.JobOptions
		if optionsJSON != "" {
			if err := json.Unmarshal([]byte(optionsJSON), &opts); err != nil {
				return nil, fmt.Errorf("unmarshal options for job %s: %w", id, err)
			}
		}

		c := staleJobCandidate{
			id:                 id,
			hasSteps:           hasSteps,
			createdAt:          createdAt,
			updatedAt:          updatedAt,
			maxDurationSeconds: opts.MaxDurationSeconds,
		}
		if startedAt.Valid {
			c.startedAt = startedAt.Time
		}
		if heartbeatAt.Valid {
			c.lastHeartbeat = heartbeatAt.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RescueStaleJobs requeues running jobs that either never planted their
// first step within startSeconds of starting, or have gone silent past the
// heartbeat/max-duration threshold (spec §4.5, §5). Requeued jobs drop back
// to queued with claimed_by cleared and their running steps reset to
// pending, so the next claimer resumes cleanly from the job's first
// non-terminal step (spec §4.3).
func RescueStaleJobs(db *sql.DB, startSeconds, heartbeatSeconds, graceSeconds int) (*RescueResult, error) {
	result := &RescueResult{}

	err := RetryWithBackoff(context.Background(), func() error {
		result.RequeuedJobIDs = nil
		return Transact(db, func(tx *sql.Tx) error {
			candidates, err := loadStaleJobCandidates(tx)
			if err != nil {
				return err
			}

			now := time.Now()
			for _, c := range candidates {
				stale, _ := c.isStale(now, startSeconds, heartbeatSeconds, graceSeconds)
				if !stale {
					continue
				}

				res, updErr := tx.ExecContext(context.Background(), `
					UPDATE jobs
					SET status = 'queued', claimed_by = '', started_at = NULL, heartbeat_at = CURRENT_TIMESTAMP,
					    version = version + 1, updated_at = CURRENT_TIMESTAMP
					WHERE id = ? AND status = 'running'
				`, c.id)
				if updErr != nil {
					return fmt.Errorf("requeue job %s: %w", c.id, updErr)
				}
				ra, raErr := res.RowsAffected()
				if raErr != nil {
					return raErr
				}
				if ra != 1 {
					// Job moved on its own between the SELECT and this UPDATE
					// (e.g. it just completed). Skip it silently.
					continue
				}

				if _, updErr := tx.ExecContext(context.Background(), `
					UPDATE steps SET status = 'pending', started_at = NULL, heartbeat_at = NULL
					WHERE job_id = ? AND status = 'running'
				`, c.id); updErr != nil {
					return fmt.Errorf("reset running steps for job %s: %w", c.id, updErr)
				}

				result.RequeuedJobIDs = append(result.RequeuedJobIDs, c.id)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
