package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// InsertSource attaches a citable document to an existing note.
func InsertSource(db *sql.DB, s *models.Source) (*models.Source, error) {
	var id int64
	err := RetryWithBackoff(context.Background(), func() error {
		res, err := db.ExecContext(context.Background(), `
			INSERT INTO sources (note_id, url, title, snippet, raw_storage_url)
			VALUES (?, ?, ?, ?, ?)
		`, s.NoteID, s.URL, s.Title, s.Snippet, s.RawStorageURL)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}

	row := db.QueryRowContext(context.Background(), `
		SELECT id, note_id, url, title, snippet, raw_storage_url FROM sources WHERE id = ?
	`, id)
	return scanSource(row)
}

// ListSourcesForNote returns the citable documents attached to a note.
func ListSourcesForNote(db *sql.DB, noteID int64) ([]*models.Source, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, note_id, url, title, snippet, raw_storage_url FROM sources WHERE note_id = ?
	`, noteID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSource(r rowScanner) (*models.Source, error) {
	var s models.Source
	var id int64
	if err := r.Scan(&id, &s.NoteID, &s.URL, &s.Title, &s.Snippet, &s.RawStorageURL); err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	s.ID = fmt.Sprintf("%d", id)
	return &s, nil
}
