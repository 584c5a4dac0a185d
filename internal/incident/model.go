package incident

import (
	"errors"
	"time"

	"github.com/linnemanlabs/codeblue/internal/alert"
)

// State tracks where an incident is in its lifecycle. Transitions are
// strictly forward: OPEN → ASSIGNED → ACKNOWLEDGED → IN_PROGRESS →
// RESOLVED.
type State string

const (
	StateOpen         State = "OPEN"
	StateAssigned     State = "ASSIGNED"
	StateAcknowledged State = "ACKNOWLEDGED"
	StateInProgress   State = "IN_PROGRESS"
	StateResolved     State = "RESOLVED"
)

// ValidState reports whether s is a known lifecycle state.
func ValidState(s State) bool {
	switch s {
	case StateOpen, StateAssigned, StateAcknowledged, StateInProgress, StateResolved:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool { return s == StateResolved }

// History actions recorded in the audit trail.
const (
	ActionCreated      = "CREATED"
	ActionAssigned     = "ASSIGNED"
	ActionAcknowledged = "ACKNOWLEDGED"
	ActionStarted      = "STATUS_CHANGED"
	ActionNoteAdded    = "NOTE_ADDED"
	ActionResolved     = "RESOLVED"
)

// Error taxonomy. Transport errors live in the queue package; these
// cover the incident domain and are mapped to HTTP statuses at the API
// boundary.
var (
	// ErrNotFound means the incident id is unknown.
	ErrNotFound = errors.New("incident not found")

	// ErrInvalidTransition means the operation is not permitted from
	// the incident's current state. The incident is left untouched.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotAssignee means the caller is not the responder the
	// incident is assigned to.
	ErrNotAssignee = errors.New("caller is not the assigned responder")

	// ErrDuplicateAlert means an incident already exists for the
	// alert id. Consumers treat it as a successful no-op.
	ErrDuplicateAlert = errors.New("alert already mapped to an incident")

	// ErrEmptyResolutionNotes rejects resolution without notes.
	ErrEmptyResolutionNotes = errors.New("resolution notes must not be empty")
)

// Incident is the unit of tracked work created from an alert (or
// manually). Timestamps are set at most once and never modified; the
// zero time means unset.
type Incident struct {
	ID        string         `json:"incident_id"`
	AlertID   string         `json:"alert_id,omitempty"`
	AlertType alert.Type     `json:"alert_type"`
	PatientID string         `json:"patient_id"`
	Room      string         `json:"room,omitempty"`
	Severity  alert.Severity `json:"severity"`
	Status    State          `json:"status"`

	AssigneeID   string `json:"assignee_id,omitempty"`
	AssigneeName string `json:"assignee_name,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	AssignedAt     time.Time `json:"assigned_at,omitzero"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitzero"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	ResolvedAt     time.Time `json:"resolved_at,omitzero"`

	ResolutionNotes string `json:"resolution_notes,omitempty"`
	ResolvedBy      string `json:"resolved_by,omitempty"`
}

// HistoryEntry is one append-only audit trail record. Entries are
// insertion-ordered per incident and never mutated or reordered.
type HistoryEntry struct {
	IncidentID     string    `json:"incident_id"`
	EmployeeID     string    `json:"employee_id,omitempty"`
	EmployeeName   string    `json:"employee_name"`
	Action         string    `json:"action"`
	PreviousStatus State     `json:"previous_status,omitempty"`
	NewStatus      State     `json:"new_status,omitempty"`
	Note           string    `json:"note,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
