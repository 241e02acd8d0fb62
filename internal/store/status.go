package store

import (
	"context"
	"database/sql"
	"fmt"
)

// StatusCounts holds summary counts across the durable store's entity types.
type StatusCounts struct {
	Jobs    JobStatusCounts `json:"jobs"`
	Steps   StepStatusCounts `json:"steps"`
	Notes   int              `json:"notes"`
	Sources int              `json:"sources"`
	Ledger  int              `json:"citation_ledger_entries"`
}

// JobStatusCounts breaks down job counts by lifecycle status (spec §3 Job).
type JobStatusCounts struct {
	Queued                 int `json:"queued"`
	Running                int `json:"running"`
	Paused                 int `json:"paused"`
	Cancelled              int `json:"cancelled"`
	Completed              int `json:"completed"`
	Error                  int `json:"error"`
	ClarificationRequired  int `json:"clarification_required"`
}

// StepStatusCounts breaks down step counts by lifecycle status (spec §3 Step).
type StepStatusCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Partial   int `json:"partial"`
	Error     int `json:"error"`
}

// GetStatusCounts retrieves all status counts in a single atomic query with retry.
func GetStatusCounts(db *sql.DB) (*StatusCounts, error) {
	counts := &StatusCounts{}

	err := RetryWithBackoff(context.Background(), func() error {
		return db.QueryRowContext(context.Background(), `
			SELECT
				COALESCE((SELECT SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END) FROM jobs), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END) FROM jobs), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'paused' THEN 1 ELSE 0 END) FROM jobs), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END) FROM jobs), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) FROM jobs), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) FROM jobs), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'clarification_required' THEN 1 ELSE 0 END) FROM jobs), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) FROM steps), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END) FROM steps), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) FROM steps), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END) FROM steps), 0),
				COALESCE((SELECT SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) FROM steps), 0),
				(SELECT COUNT(*) FROM notes),
				(SELECT COUNT(*) FROM sources),
				(SELECT COUNT(*) FROM citation_ledger_entries)
		`).Scan(
			&counts.Jobs.Queued,
			&counts.Jobs.Running,
			&counts.Jobs.Paused,
			&counts.Jobs.Cancelled,
			&counts.Jobs.Completed,
			&counts.Jobs.Error,
			&counts.Jobs.ClarificationRequired,
			&counts.Steps.Pending,
			&counts.Steps.Running,
			&counts.Steps.Completed,
			&counts.Steps.Partial,
			&counts.Steps.Error,
			&counts.Notes,
			&counts.Sources,
			&counts.Ledger,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}

	return counts, nil
}
