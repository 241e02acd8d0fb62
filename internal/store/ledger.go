package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// AssignCitation returns the existing citation number for (jobID, sourceHash)
// if one was already assigned, or mints the next dense number and inserts a
// new ledger entry otherwise (spec §4.2 step 5, §3 Citation Ledger Entry).
//
// Two concurrent callers can both read the same max(citation_number) and
// race to insert the next slot; the (job_id, citation_number) uniqueness
// constraint makes exactly one of them win, and the loser retries the whole
// read-max-insert sequence (spec §9 Open Question: ledger numbering race).
func AssignCitation(db *sql.DB, jobID, sourceHash, title, url string) (int, error) {
	for {
		var existing int
		err := db.QueryRowContext(context.Background(), `
			SELECT citation_number FROM citation_ledger_entries WHERE job_id = ? AND source_hash = ?
		`, jobID, sourceHash).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("lookup ledger entry: %w", err)
		}

		var next int
		err = Transact(db, func(tx *sql.Tx) error {
			var maxN sql.NullInt64
			if err := tx.QueryRowContext(context.Background(), `
				SELECT MAX(citation_number) FROM citation_ledger_entries WHERE job_id = ?
			`, jobID).Scan(&maxN); err != nil {
				return fmt.Errorf("read max citation number: %w", err)
			}
			next = int(maxN.Int64) + 1

			_, err := tx.ExecContext(context.Background(), `
				INSERT INTO citation_ledger_entries (job_id, source_hash, citation_number, title, url)
				VALUES (?, ?, ?, ?, ?)
			`, jobID, sourceHash, next, title, url)
			return err
		})
		if err == nil {
			return next, nil
		}
		if IsUniqueConstraintErr(err) {
			// Another writer took this source_hash or this citation_number first.
			// Loop around: re-check source_hash (may now already be assigned) or
			// re-read max(citation_number) for a fresh slot.
			continue
		}
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
}

// ListLedgerEntries returns every citation slot for a job, ordered by
// citation_number, for final report reference-list rendering.
func ListLedgerEntries(db *sql.DB, jobID string) ([]*models.LedgerEntry, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, job_id, source_hash, citation_number, title, url, accessed_at
		FROM citation_ledger_entries WHERE job_id = ? ORDER BY citation_number ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.SourceHash, &e.CitationNumber, &e.Title, &e.URL, &e.AccessedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
