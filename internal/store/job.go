package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// CreateJob inserts a new job. A job arrives queued unless its metadata is
// already missing a required clarification key, in which case intake places
// it directly in clarification_required (spec §6).
func CreateJob(db *sql.DB, question string, options models.JobOptions, metadata map[string]string) (*models.Job, error) {
	var jobID string
	err := Transact(db, func(tx *sql.Tx) error {
		id, execErr := CreateJobTx(tx, question, options, metadata)
		if execErr != nil {
			return execErr
		}
		jobID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return GetJob(db, jobID)
}

// CreateJobTx is CreateJob's single-transaction variant, used by the
// idempotent job.create command so the insert and the idempotency ledger
// entry commit together (spec §5).
func CreateJobTx(tx *sql.Tx, question string, options models.JobOptions, metadata map[string]string) (string, error) {
	if question == "" {
		return "", errors.New("question is required")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	status := models.JobStatusQueued
	if len(models.MissingClarificationKeys(metadata)) > 0 {
		status = models.JobStatusClarificationRequired
	}

	optionsJSON, err := options.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal job options: %w", err)
	}
	metadataJSON, err := models.MarshalMetadata(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal job metadata: %w", err)
	}

	id := generatePrefixedID("job")
	if _, err := tx.ExecContext(context.Background(), `
		INSERT INTO jobs (id, status, query, metadata_json, options_json)
		VALUES (?, ?, ?, ?, ?)
	`, id, string(status), question, string(metadataJSON), string(optionsJSON)); err != nil {
		return "", err
	}
	return id, nil
}

// GetJob loads a single job by ID.
func GetJob(db *sql.DB, jobID string) (*models.Job, error) {
	row := db.QueryRowContext(context.Background(), `
		SELECT id, status, version, query, metadata_json, options_json, final_report,
		       report_assets_json, error_message, control_requested, claimed_by,
		       started_at, heartbeat_at, completed_at, created_at, updated_at
		FROM jobs WHERE id = ?
	`, jobID)
	return scanJob(row)
}

// ListJobs returns jobs filtered by status (empty status means all), newest first.
func ListJobs(db *sql.DB, status models.JobStatus, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = db.QueryContext(context.Background(), `
			SELECT id, status, version, query, metadata_json, options_json, final_report,
			       report_assets_json, error_message, control_requested, claimed_by,
			       started_at, heartbeat_at, completed_at, created_at, updated_at
			FROM jobs ORDER BY created_at DESC LIMIT ?
		`, limit)
	} else {
		rows, err = db.QueryContext(context.Background(), `
			SELECT id, status, version, query, metadata_json, options_json, final_report,
			       report_assets_json, error_message, control_requested, claimed_by,
			       started_at, heartbeat_at, completed_at, created_at, updated_at
			FROM jobs WHERE status = ? ORDER BY created_at DESC LIMIT ?
		`, string(status), limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*models.Job, error) {
	var j models.Job
	var statusStr, metadataJSON, optionsJSON, reportAssetsJSON string
	var controlRequested string
	var startedAt, heartbeatAt, completedAt sql.NullTime

	err := r.Scan(
		&j.ID, &statusStr, &j.Version, &j.Question, &metadataJSON, &optionsJSON, &j.FinalReport,
		&reportAssetsJSON, &j.Error, &controlRequested, &j.ClaimedBy,
		&startedAt, &heartbeatAt, &completedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.Status = models.JobStatus(statusStr)
	j.ControlRequested = models.ControlKind(controlRequested)
	j.StartedAt = scanNullTime(startedAt)
	j.CompletedAt = scanNullTime(completedAt)
	if hb := scanNullTime(heartbeatAt); hb != nil {
		j.LastHeartbeat = *hb
	}

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &j.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal job metadata: %w", err)
		}
	}
	if optionsJSON != "" {
		if err := json.Unmarshal([]byte(optionsJSON), &j.Options); err != nil {
			return nil, fmt.Errorf("unmarshal job options: %w", err)
		}
	}
	if reportAssetsJSON != "" {
		var ra models.ReportAssets
		if err := json.Unmarshal([]byte(reportAssetsJSON), &ra); err != nil {
			return nil, fmt.Errorf("unmarshal report assets: %w", err)
		}
		j.ReportAssets = &ra
	}

	return &j, nil
}

func clarifyMutate(jobID string, answers map[string]string) func(*models.Job) error {
	return func(j *models.Job) error {
		if j.Status != models.JobStatusClarificationRequired {
			return fmt.Errorf("job %s is not awaiting clarification (status %s)", jobID, j.Status)
		}
		for k, v := range answers {
			j.Metadata[k] = v
		}
		if len(models.MissingClarificationKeys(j.Metadata)) == 0 {
			j.Status = models.JobStatusQueued
		}
		return nil
	}
}

// ApplyClarification merges answered clarification keys into a job's metadata
// and, if all required keys are now present, transitions it back to queued
// (spec §6). Version-checked to avoid racing a concurrent control action.
func ApplyClarification(db *sql.DB, jobID string, answers map[string]string) (*models.Job, error) {
	return withJobCAS(db, jobID, clarifyMutate(jobID, answers))
}

// ApplyClarificationTx is ApplyClarification's single-transaction variant,
// used by the idempotent job.clarify command so the read-mutate-write and
// the idempotency ledger entry commit together (spec §5).
func ApplyClarificationTx(tx *sql.Tx, jobID string, answers map[string]string) (*models.Job, error) {
	return applyJobCASTx(tx, jobID, clarifyMutate(jobID, answers))
}

func controlMutate(jobID string, kind models.ControlKind) func(*models.Job) error {
	return func(j *models.Job) error {
		if j.Status.IsTerminal() {
			return fmt.Errorf("job %s is already terminal (status %s)", jobID, j.Status)
		}
		j.ControlRequested = kind
		return nil
	}
}

// RequestControl records an operator-requested pause/cancel against a running
// job. The executor observes ControlRequested at its next control check and
// performs the actual status transition (spec §4.1, §7).
func RequestControl(db *sql.DB, jobID string, kind models.ControlKind) (*models.Job, error) {
	return withJobCAS(db, jobID, controlMutate(jobID, kind))
}

// RequestControlTx is RequestControl's single-transaction variant, used by
// the idempotent job pause/cancel commands (spec §5).
func RequestControlTx(tx *sql.Tx, jobID string, kind models.ControlKind) (*models.Job, error) {
	return applyJobCASTx(tx, jobID, controlMutate(jobID, kind))
}

// ApplyControlRequest transitions a job's Status to match a pending
// ControlRequested, if any (spec §4.1 "the executor observes it at the next
// control check and transitions Status to match"). A no-op when nothing is
// pending or the transition was already applied, so callers can invoke it on
// every control check without an extra write on the common path.
func ApplyControlRequest(db *sql.DB, jobID string) (*models.Job, error) {
	job, err := GetJob(db, jobID)
	if err != nil {
		return nil, err
	}
	if job.ControlRequested == "" {
		return job, nil
	}

	target := statusForControl(job.ControlRequested)
	if target == "" || job.Status == target {
		return job, nil
	}

	return withJobCAS(db, jobID, func(j *models.Job) error {
		j.Status = target
		return nil
	})
}

func statusForControl(kind models.ControlKind) models.JobStatus {
	switch kind {
	case models.ControlPaused:
		return models.JobStatusPaused
	case models.ControlCancelled:
		return models.JobStatusCancelled
	case models.ControlClarificationRequired:
		return models.JobStatusClarificationRequired
	default:
		return ""
	}
}

func resumeMutate(jobID string) func(*models.Job) error {
	return func(j *models.Job) error {
		if j.Status != models.JobStatusPaused {
			return fmt.Errorf("job %s is not paused (status %s)", jobID, j.Status)
		}
		j.Status = models.JobStatusQueued
		j.ControlRequested = ""
		return nil
	}
}

// ResumeJob clears a paused job's control request and drops it back to
// queued so the Claimer picks it up again; the executor then continues from
// the first non-terminal step (spec §4.1 Resume phase).
func ResumeJob(db *sql.DB, jobID string) (*models.Job, error) {
	return withJobCAS(db, jobID, resumeMutate(jobID))
}

// ResumeJobTx is ResumeJob's single-transaction variant, used by the
// idempotent job.resume command (spec §5).
func ResumeJobTx(tx *sql.Tx, jobID string) (*models.Job, error) {
	return applyJobCASTx(tx, jobID, resumeMutate(jobID))
}

// SetJobError marks a job failed after a fatal error at the executor's outer
// frame (spec §4.1 Failure semantics, §7: "Durable-store error: fatal").
func SetJobError(db *sql.DB, jobID, errText string) (*models.Job, error) {
	return withJobCAS(db, jobID, func(j *models.Job) error {
		j.Status = models.JobStatusError
		j.Error = errText
		return nil
	})
}

// PublishCompletion persists the finished report together with its assets
// and completed_at in one transaction, so Testable Property 3 (final_report,
// report_assets, and completed_at are all non-null iff status=completed)
// holds atomically (spec §8, §4.1 Finalize phase). Kept separate from
// withJobCAS because that helper's UPDATE does not touch completed_at.
func PublishCompletion(db *sql.DB, jobID, finalReport string, assets models.ReportAssets) (*models.Job, error) {
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return nil, fmt.Errorf("marshal report assets: %w", err)
	}

	for {
		j, err := GetJob(db, jobID)
		if err != nil {
			return nil, err
		}

		var res sql.Result
		err = Transact(db, func(tx *sql.Tx) error {
			var execErr error
			res, execErr = tx.ExecContext(context.Background(), `
				UPDATE jobs
				SET status = ?, final_report = ?, report_assets_json = ?,
				    completed_at = CURRENT_TIMESTAMP, version = version + 1, updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND version = ?
			`, string(models.JobStatusCompleted), finalReport, string(assetsJSON), j.ID, j.Version)
			return execErr
		})
		if err != nil {
			return nil, err
		}
		if ra, _ := res.RowsAffected(); ra == 1 {
			return GetJob(db, jobID)
		}
		// Lost the CAS race: retry against the freshly reloaded version.
	}
}

// getJobTx loads a job by ID using an existing transaction, so a read-mutate-
// write sequence can run inside one idempotency transaction (see
// applyJobCASTx and internal/actions).
func getJobTx(tx *sql.Tx, jobID string) (*models.Job, error) {
	row := tx.QueryRowContext(context.Background(), `
		SELECT id, status, version, query, metadata_json, options_json, final_report,
		       report_assets_json, error_message, control_requested, claimed_by,
		       started_at, heartbeat_at, completed_at, created_at, updated_at
		FROM jobs WHERE id = ?
	`, jobID)
	return scanJob(row)
}

// updateJobCASTx writes j's mutable fields back guarded by its in-memory
// version, returning ErrVersionConflict if another writer moved the row
// first (spec §5 CAS claim pattern).
func updateJobCASTx(tx *sql.Tx, j *models.Job) error {
	metadataJSON, err := models.MarshalMetadata(j.Metadata)
	if err != nil {
		return err
	}
	reportAssetsJSON := ""
	if j.ReportAssets != nil {
		b, err := json.Marshal(j.ReportAssets)
		if err != nil {
			return err
		}
		reportAssetsJSON = string(b)
	}

	res, err := tx.ExecContext(context.Background(), `
		UPDATE jobs
		SET status = ?, metadata_json = ?, final_report = ?, report_assets_json = ?,
		    error_message = ?, control_requested = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`, string(j.Status), string(metadataJSON), j.FinalReport, reportAssetsJSON,
		j.Error, string(j.ControlRequested),
		j.ID, j.Version)
	if err != nil {
		return err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra != 1 {
		return &VersionConflictError{Entity: "job", ID: j.ID, Version: j.Version}
	}
	return nil
}

// applyJobCASTx reads jobID inside tx, lets mutate adjust its in-memory
// fields, then writes it back with updateJobCASTx. The idempotent
// counterpart to withJobCAS: the read, the mutation, and the idempotency
// ledger entry all commit in the same transaction (spec §5).
func applyJobCASTx(tx *sql.Tx, jobID string, mutate func(*models.Job) error) (*models.Job, error) {
	j, err := getJobTx(tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := mutate(j); err != nil {
		return nil, err
	}
	if err := updateJobCASTx(tx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// withJobCAS loads a job, lets mutate adjust its in-memory fields, then
// writes it back with an optimistic-concurrency UPDATE guarded by version.
// Retries automatically on lost races (spec §5 CAS claim pattern).
func withJobCAS(db *sql.DB, jobID string, mutate func(*models.Job) error) (*models.Job, error) {
	for {
		var conflict bool
		err := Transact(db, func(tx *sql.Tx) error {
			_, applyErr := applyJobCASTx(tx, jobID, mutate)
			if errors.Is(applyErr, ErrVersionConflict) {
				conflict = true
				return nil
			}
			return applyErr
		})
		if err != nil {
			return nil, err
		}
		if conflict {
			continue
		}
		return GetJob(db, jobID)
	}
}

// AdvanceJobStep records the step order the executor last finished, readable
// through CurrentStepOrder (spec §4.1 Resume phase). The executor itself
// resumes by skipping terminal steps, not from this value. Written directly
// rather than through withJobCAS, with no version check or version bump,
// since it's called far more often (once per step) than status/metadata
// transitions.
func AdvanceJobStep(db *sql.DB, jobID string, stepOrder int) error {
	return RetryWithBackoff(context.Background(), func() error {
		res, err := db.ExecContext(context.Background(), `
			UPDATE jobs SET current_step_order = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, stepOrder, jobID)
		if err != nil {
			return err
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra != 1 {
			return fmt.Errorf("job %s not found", jobID)
		}
		return nil
	})
}

// CurrentStepOrder returns the job's resume point.
func CurrentStepOrder(db *sql.DB, jobID string) (int, error) {
	var order int
	err := db.QueryRowContext(context.Background(), `SELECT current_step_order FROM jobs WHERE id = ?`, jobID).Scan(&order)
	return order, err
}
