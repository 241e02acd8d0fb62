package models

// ControlKind names the three cooperative-halt signals the executor observes
// at a control check (spec §4.1, §7, §9). Plain errors are reserved for real
// failures; a ControlKind is never itself an error condition.
type ControlKind string

const (
	ControlPaused                ControlKind = "paused"
	ControlCancelled             ControlKind = "cancelled"
	ControlClarificationRequired ControlKind = "clarification_required"
)

// FromJobStatus maps a halt-shaped JobStatus to its ControlKind, or ("", false)
// if status is not a halt status.
func FromJobStatus(status JobStatus) (ControlKind, bool) {
	switch status {
	case JobStatusPaused:
		return ControlPaused, true
	case JobStatusCancelled:
		return ControlCancelled, true
	case JobStatusClarificationRequired:
		return ControlClarificationRequired, true
	default:
		return "", false
	}
}
