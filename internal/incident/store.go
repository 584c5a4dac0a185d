package incident

import (
	"context"
	"time"
)

// Update describes one lifecycle transition: the allowed source states,
// the target state, and the field writes that accompany it. Stores
// apply the whole update atomically under per-incident exclusion; a
// concurrent loser observes ErrInvalidTransition.
type Update struct {
	From []State
	To   State

	// RequireAssignee, when set, rejects the transition with
	// ErrNotAssignee unless it matches the incident's assignee.
	RequireAssignee string

	// Field writes. Empty strings / zero times are left untouched,
	// which preserves the set-at-most-once timestamp invariant.
	AssigneeID      string
	AssigneeName    string
	AssignedAt      time.Time
	AcknowledgedAt  time.Time
	StartedAt       time.Time
	ResolvedAt      time.Time
	ResolutionNotes string
	ResolvedBy      string
}

// Store is the persistence interface for incidents and their audit
// trail. Implementations must enforce alert-id uniqueness on create
// and serialize transitions per incident.
type Store interface {
	// Create inserts a new incident with its creation audit entry.
	// Returns ErrDuplicateAlert when the alert id is already mapped.
	Create(ctx context.Context, inc *Incident, entry HistoryEntry) error

	Get(ctx context.Context, id string) (*Incident, bool, error)
	GetByAlertID(ctx context.Context, alertID string) (*Incident, bool, error)

	// List returns incidents newest-first, optionally filtered by
	// status ("" = all).
	List(ctx context.Context, status State) ([]*Incident, error)

	// ListUnassigned returns OPEN incidents with no assignee,
	// oldest-first, for the assignment sweep.
	ListUnassigned(ctx context.Context) ([]*Incident, error)

	History(ctx context.Context, id string) ([]HistoryEntry, error)

	// Transition atomically checks the current state against
	// up.From, applies the update, and appends the audit entry.
	// Returns the updated incident.
	Transition(ctx context.Context, id string, up Update, entry HistoryEntry) (*Incident, error)

	// AppendNote records a non-state-changing audit note. Fails with
	// ErrInvalidTransition when the incident is terminal.
	AppendNote(ctx context.Context, id string, entry HistoryEntry) (*Incident, error)

	// ResolvedSince returns incidents resolved at or after the cutoff.
	ResolvedSince(ctx context.Context, cutoff time.Time) ([]*Incident, error)
}
