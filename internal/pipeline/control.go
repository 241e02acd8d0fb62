package pipeline

import (
	"database/sql"

	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// controlHalt is the typed signal raised when a control check observes a
// halt-shaped job status: paused, cancelled, or clarification_required
// (spec §4.1 "cooperative control check", §9 Design Notes). It is caught by
// the outer Run frame, which returns silently once the transition has been
// applied to the job row.
type controlHalt struct {
	kind models.ControlKind
}

func (h *controlHalt) Error() string { return "control halt: " + string(h.kind) }

// checkControl applies any pending operator control request to the job's
// Status, then raises controlHalt if the resulting status is halt-shaped.
// Called at every phase boundary and between steps (spec §4.1): an operator
// pause/cancel only records intent on ControlRequested, so the executor must
// observe it here and perform the actual status transition itself.
func checkControl(db *sql.DB, jobID string) (*models.Job, error) {
	job, err := store.ApplyControlRequest(db, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsHaltStatus() {
		kind, _ := models.FromJobStatus(job.Status)
		return nil, &controlHalt{kind: kind}
	}
	return job, nil
}
