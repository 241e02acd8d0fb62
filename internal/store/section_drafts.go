package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// UpsertSectionDraft writes a longform section's content, replacing any prior
// draft for the same (job_id, section_key) — sections are revised in place
// across critic iterations rather than accumulating history (spec §4.2).
func UpsertSectionDraft(db *sql.DB, d *models.SectionDraft) error {
	citationMapJSON, err := json.Marshal(d.CitationMap)
	if err != nil {
		return fmt.Errorf("marshal citation map: %w", err)
	}
	return RetryWithBackoff(context.Background(), func() error {
		_, err := db.ExecContext(context.Background(), `
			INSERT INTO section_drafts (job_id, section_key, status, tokens, content, citation_map_json)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_id, section_key) DO UPDATE SET
				status = excluded.status,
				tokens = excluded.tokens,
				content = excluded.content,
				citation_map_json = excluded.citation_map_json
		`, d.JobID, string(d.SectionKey), string(d.Status), d.Tokens, d.Content, string(citationMapJSON))
		return err
	})
}

// ListSectionDrafts returns a job's section drafts in fixed rendering order
// (spec §3 SectionOrder), skipping sections that have no draft yet.
func ListSectionDrafts(db *sql.DB, jobID string) ([]*models.SectionDraft, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, job_id, section_key, status, tokens, content, citation_map_json
		FROM section_drafts WHERE job_id = ?
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byKey := map[models.SectionKey]*models.SectionDraft{}
	for rows.Next() {
		var d models.SectionDraft
		var sectionKeyStr, statusStr, citationMapJSON string
		if err := rows.Scan(&d.ID, &d.JobID, &sectionKeyStr, &statusStr, &d.Tokens, &d.Content, &citationMapJSON); err != nil {
			return nil, fmt.Errorf("scan section draft: %w", err)
		}
		d.SectionKey = models.SectionKey(sectionKeyStr)
		d.Status = models.SectionStatus(statusStr)
		if citationMapJSON != "" {
			if err := json.Unmarshal([]byte(citationMapJSON), &d.CitationMap); err != nil {
				return nil, fmt.Errorf("unmarshal citation map: %w", err)
			}
		}
		byKey[d.SectionKey] = &d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.SectionDraft, 0, len(byKey))
	for _, key := range models.SectionOrder {
		if d, ok := byKey[key]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}
