package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// InsertNote appends a new note to a job. Notes are never updated in place —
// later summaries supersede earlier ones only by being more recent and more
// relevant to the Context Packer's selection, never by mutation.
func InsertNote(db *sql.DB, n *models.Note) (*models.Note, error) {
	importance := models.ClampImportance(n.Importance)

	var id int64
	err := RetryWithBackoff(context.Background(), func() error {
		res, err := db.ExecContext(context.Background(), `
			INSERT INTO notes (job_id, step_id, role, importance, token_count, content, source_url)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, n.JobID, n.StepID, string(n.Role), importance, n.TokenCount, n.Content, n.SourceURL)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}

	return GetNote(db, id)
}

// GetNote loads a single note by ID.
func GetNote(db *sql.DB, id int64) (*models.Note, error) {
	row := db.QueryRowContext(context.Background(), `
		SELECT id, job_id, step_id, role, importance, token_count, content, source_url, created_at
		FROM notes WHERE id = ?
	`, id)
	return scanNote(row)
}

// ListNotesForJob returns every note attached to a job, oldest first.
func ListNotesForJob(db *sql.DB, jobID string) ([]*models.Note, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, job_id, step_id, role, importance, token_count, content, source_url, created_at
		FROM notes WHERE job_id = ? ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNote(r rowScanner) (*models.Note, error) {
	var n models.Note
	var roleStr string
	if err := r.Scan(&n.ID, &n.JobID, &n.StepID, &roleStr, &n.Importance, &n.TokenCount, &n.Content, &n.SourceURL, &n.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}
	n.Role = models.NoteRole(roleStr)
	return &n, nil
}
