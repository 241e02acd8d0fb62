package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Diagnostic represents a single consistency check finding.
type Diagnostic struct {
	Level           string `json:"level"` // "warning" or "error"
	Code            string `json:"code"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// RunDiagnostics performs consistency checks and returns findings. These mirror
// the Rescue Sweeper's staleness logic (spec §4.3) in read-only form so an
// operator can inspect what the next sweep would act on before it runs.
func RunDiagnostics(db *sql.DB, rescueStartSeconds, rescueHeartbeatSeconds, rescueGraceSeconds int) ([]Diagnostic, error) {
	var diags []Diagnostic

	staleRunning, err := findStaleRunningJobs(db, rescueStartSeconds, rescueHeartbeatSeconds, rescueGraceSeconds)
	if err != nil {
		return nil, fmt.Errorf("stale running jobs check: %w", err)
	}
	diags = append(diags, staleRunning...)

	orphanSteps, err := findOrphanedRunningSteps(db)
	if err != nil {
		return nil, fmt.Errorf("orphaned running steps check: %w", err)
	}
	diags = append(diags, orphanSteps...)

	gaps, err := findLedgerNumberingGaps(db)
	if err != nil {
		return nil, fmt.Errorf("citation ledger gap check: %w", err)
	}
	diags = append(diags, gaps...)

	return diags, nil
}

// findStaleRunningJobs reuses the Rescue Sweeper's own threshold
// calculation (spec §4.5) in read-only form, so what doctor reports matches
// exactly what the next sweep will act on.
func findStaleRunningJobs(db *sql.DB, startSeconds, heartbeatSeconds, graceSeconds int) ([]Diagnostic, error) {
	var diags []Diagnostic
	err := Transact(db, func(tx *sql.Tx) error {
		candidates, err := loadStaleJobCandidates(tx)
		if err != nil {
			return err
		}

		now := time.Now()
		for _, c := range candidates {
			stale, reason := c.isStale(now, startSeconds, heartbeatSeconds, graceSeconds)
			if !stale {
				continue
			}
			diags = append(diags, Diagnostic{
				Level:           "warning",
				Code:            "STALE_RUNNING_JOB",
				Message:         fmt.Sprintf("job %s is stale (%s threshold exceeded)", c.id, reason),
				SuggestedAction: "the rescue sweeper will requeue this job on its next pass",
			})
		}
		return nil
	})
	return diags, err
}

// findOrphanedRunningSteps finds steps left running on a job that is no
// longer itself running — a requeue or crash left the step row behind.
func findOrphanedRunningSteps(db *sql.DB) ([]Diagnostic, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT s.id, s.job_id, j.status
		FROM steps s
		JOIN jobs j ON j.id = s.job_id
		WHERE s.status = 'running' AND j.status != 'running'
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var diags []Diagnostic
	for rows.Next() {
		var stepID, jobID, jobStatus string
		if err := rows.Scan(&stepID, &jobID, &jobStatus); err != nil {
			return nil, err
		}
		diags = append(diags, Diagnostic{
			Level:           "warning",
			Code:            "ORPHANED_RUNNING_STEP",
			Message:         fmt.Sprintf("step %s is running but job %s is %s", stepID, jobID, jobStatus),
			SuggestedAction: "reset the step to pending before the job resumes",
		})
	}
	return diags, rows.Err()
}

// findLedgerNumberingGaps finds jobs whose citation ledger numbering is not
// dense starting at 1 — a violation of the append-only ledger invariant
// (spec §3 Citation Ledger Entry, §8 Testable Properties).
func findLedgerNumberingGaps(db *sql.DB) ([]Diagnostic, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT job_id, COUNT(*) AS n, MAX(citation_number) AS max_n
		FROM citation_ledger_entries
		GROUP BY job_id
		HAVING COUNT(*) != MAX(citation_number)
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var diags []Diagnostic
	for rows.Next() {
		var jobID string
		var n, maxN int
		if err := rows.Scan(&jobID, &n, &maxN); err != nil {
			return nil, err
		}
		diags = append(diags, Diagnostic{
			Level:   "error",
			Code:    "LEDGER_NUMBERING_GAP",
			Message: fmt.Sprintf("job %s has %d citation entries but max citation_number %d", jobID, n, maxN),
		})
	}
	return diags, rows.Err()
}
