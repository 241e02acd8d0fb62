package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// InsertPlannedSteps persists a freshly planned set of steps for a job,
// numbering them densely starting at 1 in plan order (spec §3, §8 Testable
// Properties: dense step_order). Intended to run once, right after planning.
func InsertPlannedSteps(db *sql.DB, jobID string, planned []models.PlannedStep) ([]*models.Step, error) {
	out := make([]*models.Step, 0, len(planned))
	err := Transact(db, func(tx *sql.Tx) error {
		for i, p := range planned {
			step := &models.Step{
				ID:        generatePrefixedID("step"),
				JobID:     jobID,
				Title:     p.Title,
				ToolHint:  p.ToolHint,
				Objective: p.Objective,
				Status:    models.StepStatusPending,
				StepOrder: i + 1,
			}
			_, err := tx.ExecContext(context.Background(), `
				INSERT INTO steps (id, job_id, step_order, title, tool_hint, objective, status)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, step.ID, step.JobID, step.StepOrder, step.Title, step.ToolHint, step.Objective, string(step.Status))
			if err != nil {
				return fmt.Errorf("insert step %d: %w", step.StepOrder, err)
			}
			out = append(out, step)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSteps returns all steps for a job ordered by step_order.
func ListSteps(db *sql.DB, jobID string) ([]*models.Step, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, job_id, step_order, title, tool_hint, objective, theme, iteration, status, result_json
		FROM steps WHERE job_id = ? ORDER BY step_order ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetStepByOrder loads a single step by its position in the plan.
func GetStepByOrder(db *sql.DB, jobID string, order int) (*models.Step, error) {
	row := db.QueryRowContext(context.Background(), `
		SELECT id, job_id, step_order, title, tool_hint, objective, theme, iteration, status, result_json
		FROM steps WHERE job_id = ? AND step_order = ?
	`, jobID, order)
	return scanStep(row)
}

func scanStep(r rowScanner) (*models.Step, error) {
	var s models.Step
	var statusStr, resultJSON string
	if err := r.Scan(&s.ID, &s.JobID, &s.StepOrder, &s.Title, &s.ToolHint, &s.Objective, &s.Theme, &s.Iteration, &statusStr, &resultJSON); err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}
	s.Status = models.StepStatus(statusStr)
	if resultJSON != "" {
		s.Result = json.RawMessage(resultJSON)
	}
	return &s, nil
}

// StartStep transitions a pending step to running and stamps started_at.
func StartStep(db *sql.DB, stepID string) error {
	return RetryWithBackoff(context.Background(), func() error {
		res, err := db.ExecContext(context.Background(), `
			UPDATE steps SET status = ?, started_at = CURRENT_TIMESTAMP, heartbeat_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, string(models.StepStatusRunning), stepID, string(models.StepStatusPending))
		if err != nil {
			return err
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra != 1 {
			return fmt.Errorf("step %s was not pending", stepID)
		}
		return nil
	})
}

// CompleteStep persists a step's terminal status and structured result.
func CompleteStep(db *sql.DB, stepID string, status models.StepStatus, result models.StepResult) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal step result: %w", err)
	}
	return RetryWithBackoff(context.Background(), func() error {
		_, err := db.ExecContext(context.Background(), `
			UPDATE steps SET status = ?, result_json = ?, completed_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(status), string(resultJSON), stepID)
		return err
	})
}
