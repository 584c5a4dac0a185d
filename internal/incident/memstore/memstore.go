// Package memstore provides an in-memory implementation of
// incident.Store. Suitable for dev/testing; all operations on one
// incident are serialized under a single mutex.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/codeblue/internal/incident"
)

// Store holds incidents and their audit trail in memory.
type Store struct {
	mu        sync.Mutex
	incidents map[string]*incident.Incident      // incident ID -> incident
	byAlert   map[string]string                  // alert ID -> incident ID (dedup)
	history   map[string][]incident.HistoryEntry // incident ID -> entries, insertion order
	order     []string                           // incident IDs, creation order
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		incidents: make(map[string]*incident.Incident),
		byAlert:   make(map[string]string),
		history:   make(map[string][]incident.HistoryEntry),
	}
}

// Create inserts the incident and its creation audit entry. Fails with
// ErrDuplicateAlert when the alert id is already mapped.
func (s *Store) Create(_ context.Context, inc *incident.Incident, entry incident.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inc.AlertID != "" {
		if _, exists := s.byAlert[inc.AlertID]; exists {
			return incident.ErrDuplicateAlert
		}
		s.byAlert[inc.AlertID] = inc.ID
	}

	cp := *inc
	s.incidents[inc.ID] = &cp
	s.order = append(s.order, inc.ID)
	s.history[inc.ID] = append(s.history[inc.ID], entry)
	return nil
}

// Get retrieves an incident by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	cp := *inc
	return &cp, true, nil
}

// GetByAlertID retrieves the incident mapped to an alert id, for
// idempotent consumption.
func (s *Store) GetByAlertID(_ context.Context, alertID string) (*incident.Incident, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAlert[alertID]
	if !ok {
		return nil, false, nil
	}
	cp := *s.incidents[id]
	return &cp, true, nil
}

// List returns incidents newest-first, optionally filtered by status.
func (s *Store) List(_ context.Context, status incident.State) ([]*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*incident.Incident, 0, len(s.order))
	for _, id := range s.order {
		inc := s.incidents[id]
		if status != "" && inc.Status != status {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListUnassigned returns OPEN incidents with no assignee, oldest-first.
func (s *Store) ListUnassigned(_ context.Context) ([]*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*incident.Incident
	for _, id := range s.order {
		inc := s.incidents[id]
		if inc.Status == incident.StateOpen && inc.AssigneeID == "" {
			cp := *inc
			out = append(out, &cp)
		}
	}
	return out, nil
}

// History returns the audit trail in insertion order.
func (s *Store) History(_ context.Context, id string) ([]incident.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[id]; !ok {
		return nil, incident.ErrNotFound
	}
	return slices.Clone(s.history[id]), nil
}

// Transition applies the update under the store mutex, so two
// concurrent transitions on one incident serialize and the loser
// observes ErrInvalidTransition.
func (s *Store) Transition(_ context.Context, id string, up incident.Update, entry incident.HistoryEntry) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	if !slices.Contains(up.From, inc.Status) {
		return nil, incident.ErrInvalidTransition
	}
	if up.RequireAssignee != "" && inc.AssigneeID != up.RequireAssignee {
		return nil, incident.ErrNotAssignee
	}

	if entry.PreviousStatus == "" {
		entry.PreviousStatus = inc.Status
	}

	inc.Status = up.To
	if up.AssigneeID != "" {
		inc.AssigneeID = up.AssigneeID
		inc.AssigneeName = up.AssigneeName
	}
	if !up.AssignedAt.IsZero() {
		inc.AssignedAt = up.AssignedAt
	}
	if !up.AcknowledgedAt.IsZero() {
		inc.AcknowledgedAt = up.AcknowledgedAt
	}
	if !up.StartedAt.IsZero() {
		inc.StartedAt = up.StartedAt
	}
	if !up.ResolvedAt.IsZero() {
		inc.ResolvedAt = up.ResolvedAt
	}
	if up.ResolutionNotes != "" {
		inc.ResolutionNotes = up.ResolutionNotes
	}
	if up.ResolvedBy != "" {
		inc.ResolvedBy = up.ResolvedBy
	}

	s.history[id] = append(s.history[id], entry)

	cp := *inc
	return &cp, nil
}

// AppendNote records a non-state-changing audit note on a non-terminal
// incident.
func (s *Store) AppendNote(_ context.Context, id string, entry incident.HistoryEntry) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	if inc.Status.Terminal() {
		return nil, incident.ErrInvalidTransition
	}

	if entry.PreviousStatus == "" {
		entry.PreviousStatus = inc.Status
		entry.NewStatus = inc.Status
	}
	s.history[id] = append(s.history[id], entry)

	cp := *inc
	return &cp, nil
}

// ResolvedSince returns incidents resolved at or after the cutoff.
func (s *Store) ResolvedSince(_ context.Context, cutoff time.Time) ([]*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*incident.Incident
	for _, id := range s.order {
		inc := s.incidents[id]
		if inc.Status != incident.StateResolved || inc.ResolvedAt.Before(cutoff) {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	return out, nil
}
