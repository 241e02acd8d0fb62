package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// ClaimNextJob atomically transitions one queued job to running, owned by
// workerName. SQLite has no SELECT ... FOR UPDATE SKIP LOCKED, so this
// selects the oldest queued id and then runs UPDATE ... WHERE id = ? AND
// status = 'queued' in the same transaction, checking RowsAffected() == 1 to
// guarantee at most one caller wins the row, even under concurrent claimers
// (spec §4.1 Claimer, §5).
//
// Returns (nil, nil) when no queued job is available.
func ClaimNextJob(db *sql.DB, workerName string) (*models.Job, error) {
	var jobID string
	var claimed bool

	err := RetryWithBackoff(context.Background(), func() error {
		return Transact(db, func(tx *sql.Tx) error {
			err := tx.QueryRowContext(context.Background(), `
				SELECT id FROM jobs
				WHERE status = 'queued'
				ORDER BY created_at ASC
				LIMIT 1
			`).Scan(&jobID)
			if err == sql.ErrNoRows {
				claimed = false
				return nil
			}
			if err != nil {
				return fmt.Errorf("select next queued job: %w", err)
			}

			res, err := tx.ExecContext(context.Background(), `
				UPDATE jobs
				SET status = 'running', claimed_by = ?, started_at = CURRENT_TIMESTAMP,
				    heartbeat_at = CURRENT_TIMESTAMP, version = version + 1, updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND status = 'queued'
			`, workerName, jobID)
			if err != nil {
				return fmt.Errorf("claim job %s: %w", jobID, err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return err
			}
			// Another claimer (or the rescue sweeper) won the row between the
			// SELECT and the UPDATE. Not an error: just means this attempt
			// found nothing to claim.
			claimed = ra == 1
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, nil
	}
	return GetJob(db, jobID)
}

// Heartbeat updates a claimed job's heartbeat timestamp so the Rescue Sweeper
// does not consider it stalled (spec §4.3).
func Heartbeat(db *sql.DB, jobID string) error {
	return RetryWithBackoff(context.Background(), func() error {
		res, err := db.ExecContext(context.Background(), `
			UPDATE jobs SET heartbeat_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'running'
		`, jobID)
		if err != nil {
			return err
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra != 1 {
			return &JobClaimLostError{JobID: jobID}
		}
		return nil
	})
}
