package incident

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/codeblue/internal/alert"
	"github.com/linnemanlabs/codeblue/internal/oncall"
)

// systemAuthor names the synthetic audit author for coordinator-driven
// history entries.
const systemAuthor = "SYSTEM"

// Directory resolves the current on-call responder for a role.
type Directory interface {
	Current(role string) (oncall.Responder, bool)
	Find(employeeID string) (oncall.Responder, bool)
}

// Notifier informs a responder about an assignment. Delivery is
// best-effort: errors are logged by the caller and never roll back the
// assignment.
type Notifier interface {
	Notify(ctx context.Context, inc *Incident, r oncall.Responder) error
}

// Service is the incident coordinator: it consumes alert events,
// drives the lifecycle state machine, orchestrates assignment, and
// maintains the audit trail.
type Service struct {
	store     Store
	directory Directory
	notifier  Notifier
	logger    log.Logger
	metrics   *Metrics
}

// NewService creates the coordinator. directory and notifier may be
// nil in tests; metrics may be nil to disable instrumentation.
func NewService(store Store, directory Directory, notifier Notifier, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
	}
}

// HandleAlertEvent consumes one alert event. Redelivered events are
// absorbed here: an alert id already mapped to an incident is
// discarded without creating a second incident.
func (s *Service) HandleAlertEvent(ctx context.Context, ev alert.Event) error {
	if _, ok, err := s.store.GetByAlertID(ctx, ev.ID); err != nil {
		s.metrics.incAlertConsumed("error")
		return err
	} else if ok {
		s.logger.Info(ctx, "duplicate alert discarded", "alert_id", ev.ID)
		s.metrics.incAlertConsumed("duplicate")
		return nil
	}

	now := time.Now()
	inc := &Incident{
		ID:        ulid.Make().String(),
		AlertID:   ev.ID,
		AlertType: ev.Type,
		PatientID: ev.PatientID,
		Room:      ev.Room,
		Severity:  ev.Severity,
		Status:    StateOpen,
		CreatedAt: now,
	}

	entry := HistoryEntry{
		IncidentID:   inc.ID,
		EmployeeName: systemAuthor,
		Action:       ActionCreated,
		NewStatus:    StateOpen,
		Note:         "Created from alert " + ev.ID,
		Timestamp:    now,
	}

	if err := s.store.Create(ctx, inc, entry); err != nil {
		// a racing consumer won the insert; same outcome as the
		// dedup check above
		if err == ErrDuplicateAlert {
			s.logger.Info(ctx, "duplicate alert discarded on insert", "alert_id", ev.ID)
			s.metrics.incAlertConsumed("duplicate")
			return nil
		}
		s.metrics.incAlertConsumed("error")
		return err
	}

	s.metrics.incAlertConsumed("created")
	s.logger.Info(ctx, "incident created",
		"incident_id", inc.ID,
		"alert_id", ev.ID,
		"alert_type", ev.Type,
		"severity", ev.Severity,
	)

	s.autoAssign(ctx, inc)
	return nil
}

// CreateManual opens an incident that did not originate from an alert
// event.
func (s *Service) CreateManual(ctx context.Context, typ alert.Type, patientID, room string) (*Incident, error) {
	now := time.Now()
	inc := &Incident{
		ID:        ulid.Make().String(),
		AlertType: typ,
		PatientID: patientID,
		Room:      room,
		Severity:  alert.SeverityFor(typ),
		Status:    StateOpen,
		CreatedAt: now,
	}

	entry := HistoryEntry{
		IncidentID:   inc.ID,
		EmployeeName: systemAuthor,
		Action:       ActionCreated,
		NewStatus:    StateOpen,
		Note:         "Created manually",
		Timestamp:    now,
	}

	if err := s.store.Create(ctx, inc, entry); err != nil {
		return nil, err
	}

	s.autoAssign(ctx, inc)

	// re-read so the caller sees the post-assignment state
	cur, ok, err := s.store.Get(ctx, inc.ID)
	if err != nil || !ok {
		return inc, nil //nolint:nilerr // creation succeeded; stale view is acceptable
	}
	return cur, nil
}

// autoAssign walks the alert type's role priorities and, per role, the
// on-call tier order. If no responder resolves the incident stays OPEN
// and unassigned; the periodic sweep retries it later.
func (s *Service) autoAssign(ctx context.Context, inc *Incident) {
	if s.directory == nil {
		return
	}

	for _, role := range alert.RolesFor(inc.AlertType) {
		r, ok := s.directory.Current(role)
		if !ok {
			continue
		}

		updated, err := s.assignTo(ctx, inc.ID, r, "Auto-assigned based on alert type: "+string(inc.AlertType))
		if err != nil {
			// someone else moved the incident first; not a failure
			if err == ErrInvalidTransition {
				return
			}
			s.logger.Error(ctx, err, "assignment failed", "incident_id", inc.ID, "role", role)
			return
		}

		s.metrics.incAssignment("assigned")
		s.logger.Info(ctx, "incident assigned",
			"incident_id", inc.ID,
			"employee_id", r.EmployeeID,
			"role", r.Role,
			"tier", r.Tier,
		)
		s.dispatchNotification(ctx, updated, r)
		return
	}

	s.metrics.incAssignment("unavailable")
	s.logger.Warn(ctx, "no on-call responder available, incident left unassigned",
		"incident_id", inc.ID,
		"alert_type", inc.AlertType,
	)
}

// assignTo performs the OPEN → ASSIGNED transition for responder r.
func (s *Service) assignTo(ctx context.Context, incidentID string, r oncall.Responder, note string) (*Incident, error) {
	now := time.Now()
	return s.store.Transition(ctx, incidentID, Update{
		From:         []State{StateOpen},
		To:           StateAssigned,
		AssigneeID:   r.EmployeeID,
		AssigneeName: r.Name,
		AssignedAt:   now,
	}, HistoryEntry{
		IncidentID:     incidentID,
		EmployeeID:     r.EmployeeID,
		EmployeeName:   r.Name,
		Action:         ActionAssigned,
		PreviousStatus: StateOpen,
		NewStatus:      StateAssigned,
		Note:           note,
		Timestamp:      now,
	})
}

// AssignTo is the administrative assignment operation: it binds an
// OPEN incident to a specific on-call employee.
func (s *Service) AssignTo(ctx context.Context, incidentID, employeeID string) (*Incident, error) {
	r, ok := s.directory.Find(employeeID)
	if !ok {
		return nil, ErrNotFound
	}

	inc, err := s.assignTo(ctx, incidentID, r, "Manually assigned")
	if err != nil {
		return nil, err
	}

	s.metrics.incAssignment("assigned")
	s.dispatchNotification(ctx, inc, r)
	return inc, nil
}

func (s *Service) dispatchNotification(ctx context.Context, inc *Incident, r oncall.Responder) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, inc, r); err != nil {
		// best-effort: the assignment stands regardless
		s.logger.Error(ctx, err, "notification delivery failed",
			"incident_id", inc.ID,
			"employee_id", r.EmployeeID,
		)
	}
}

// Sweep retries assignment for OPEN, unassigned incidents. Invoked
// periodically so an empty on-call roster does not strand incidents.
func (s *Service) Sweep(ctx context.Context) error {
	open, err := s.store.ListUnassigned(ctx)
	if err != nil {
		return err
	}
	for _, inc := range open {
		s.autoAssign(ctx, inc)
	}
	return nil
}

// RunSweeper runs Sweep at the given interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error(ctx, err, "assignment sweep failed")
			}
		}
	}
}

// Acknowledge records that the assigned responder has seen the
// incident (ASSIGNED → ACKNOWLEDGED).
func (s *Service) Acknowledge(ctx context.Context, id, employeeID, employeeName string) (*Incident, error) {
	now := time.Now()
	inc, err := s.store.Transition(ctx, id, Update{
		From:            []State{StateAssigned},
		To:              StateAcknowledged,
		RequireAssignee: employeeID,
		AcknowledgedAt:  now,
	}, HistoryEntry{
		IncidentID:     id,
		EmployeeID:     employeeID,
		EmployeeName:   employeeName,
		Action:         ActionAcknowledged,
		PreviousStatus: StateAssigned,
		NewStatus:      StateAcknowledged,
		Note:           "Responder acknowledged the incident",
		Timestamp:      now,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.incTransition(StateAcknowledged)
	return inc, nil
}

// StartWork records that the responder began handling the incident
// (ACKNOWLEDGED → IN_PROGRESS). note is optional.
func (s *Service) StartWork(ctx context.Context, id, employeeID, employeeName, note string) (*Incident, error) {
	if strings.TrimSpace(note) == "" {
		note = "Started working on incident"
	}
	now := time.Now()
	inc, err := s.store.Transition(ctx, id, Update{
		From:            []State{StateAcknowledged},
		To:              StateInProgress,
		RequireAssignee: employeeID,
		StartedAt:       now,
	}, HistoryEntry{
		IncidentID:     id,
		EmployeeID:     employeeID,
		EmployeeName:   employeeName,
		Action:         ActionStarted,
		PreviousStatus: StateAcknowledged,
		NewStatus:      StateInProgress,
		Note:           note,
		Timestamp:      now,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.incTransition(StateInProgress)
	return inc, nil
}

// AddNote appends a progress note to a non-terminal incident. The
// incident's state is unchanged.
func (s *Service) AddNote(ctx context.Context, id, employeeID, employeeName, note string) (*Incident, error) {
	return s.store.AppendNote(ctx, id, HistoryEntry{
		IncidentID:   id,
		EmployeeID:   employeeID,
		EmployeeName: employeeName,
		Action:       ActionNoteAdded,
		Note:         note,
		Timestamp:    time.Now(),
	})
}

// Resolve closes the incident with mandatory resolution notes
// (IN_PROGRESS or ACKNOWLEDGED → RESOLVED).
func (s *Service) Resolve(ctx context.Context, id, employeeID, employeeName, resolutionNotes string) (*Incident, error) {
	if strings.TrimSpace(resolutionNotes) == "" {
		return nil, ErrEmptyResolutionNotes
	}

	now := time.Now()
	inc, err := s.store.Transition(ctx, id, Update{
		From:            []State{StateInProgress, StateAcknowledged},
		To:              StateResolved,
		ResolvedAt:      now,
		ResolutionNotes: resolutionNotes,
		ResolvedBy:      employeeID,
	}, HistoryEntry{
		IncidentID:   id,
		EmployeeID:   employeeID,
		EmployeeName: employeeName,
		Action:       ActionResolved,
		NewStatus:    StateResolved,
		Note:         resolutionNotes,
		Timestamp:    now,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.incTransition(StateResolved)
	return inc, nil
}

// Get retrieves one incident.
func (s *Service) Get(ctx context.Context, id string) (*Incident, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns incidents newest-first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status State) ([]*Incident, error) {
	return s.store.List(ctx, status)
}

// History returns the incident's audit trail in insertion order.
func (s *Service) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	return s.store.History(ctx, id)
}
