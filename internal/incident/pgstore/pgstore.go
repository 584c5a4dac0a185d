// Package pgstore provides a PostgreSQL implementation of
// incident.Store. Transitions lock the incident row (SELECT ... FOR
// UPDATE) so concurrent lifecycle operations on one incident
// serialize; the loser observes ErrInvalidTransition.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/codeblue/internal/alert"
	"github.com/linnemanlabs/codeblue/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/codeblue/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const incidentColumns = `incident_id, alert_id, alert_type, patient_id, room, severity, status,
	assignee_id, assignee_name, created_at, assigned_at, acknowledged_at, started_at, resolved_at,
	resolution_notes, resolved_by`

// Create inserts the incident and its creation audit entry in one
// transaction. A unique-violation on alert_id maps to
// ErrDuplicateAlert so redelivered alerts are absorbed.
func (s *Store) Create(ctx context.Context, inc *incident.Incident, entry incident.HistoryEntry) error {
	ctx, span := tracer.Start(ctx, "pgstore.Create", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	var alertID *string
	if inc.AlertID != "" {
		alertID = &inc.AlertID
	}

	_, err = tx.Exec(ctx, `INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		inc.ID, alertID, string(inc.AlertType), inc.PatientID, inc.Room, string(inc.Severity), string(inc.Status),
		inc.AssigneeID, inc.AssigneeName, inc.CreatedAt,
		nullable(inc.AssignedAt), nullable(inc.AcknowledgedAt), nullable(inc.StartedAt), nullable(inc.ResolvedAt),
		inc.ResolutionNotes, inc.ResolvedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "incidents_alert_id_key" {
			return incident.ErrDuplicateAlert
		}
		return spanErr(span, fmt.Errorf("insert incident: %w", err))
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return spanErr(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Get retrieves an incident by ID.
func (s *Store) Get(ctx context.Context, id string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE incident_id = $1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// GetByAlertID retrieves the incident mapped to an alert id.
func (s *Store) GetByAlertID(ctx context.Context, alertID string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByAlertID", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE alert_id = $1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, alertID))
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// List returns incidents newest-first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status incident.State) ([]*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + incidentColumns + ` FROM incidents WHERE status = $1 ORDER BY created_at DESC`
		args = append(args, string(status))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query incidents: %w", err))
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// ListUnassigned returns OPEN incidents with no assignee, oldest-first.
func (s *Store) ListUnassigned(ctx context.Context) ([]*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListUnassigned", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE status = $1 AND assignee_id = '' ORDER BY created_at ASC`,
		string(incident.StateOpen),
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query unassigned: %w", err))
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// History returns the audit trail in insertion order.
func (s *Store) History(ctx context.Context, id string) ([]incident.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.History", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM incidents WHERE incident_id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, spanErr(span, fmt.Errorf("check incident: %w", err))
	}
	if !exists {
		return nil, incident.ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT incident_id, employee_id, employee_name, action, previous_status, new_status, note, created_at
		 FROM incident_history WHERE incident_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query history: %w", err))
	}
	defer rows.Close()

	var entries []incident.HistoryEntry
	for rows.Next() {
		var (
			e        incident.HistoryEntry
			prev, nw string
		)
		if err := rows.Scan(&e.IncidentID, &e.EmployeeID, &e.EmployeeName, &e.Action, &prev, &nw, &e.Note, &e.Timestamp); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan history: %w", err))
		}
		e.PreviousStatus = incident.State(prev)
		e.NewStatus = incident.State(nw)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate history: %w", err))
	}
	return entries, nil
}

// Transition locks the incident row, checks the source state and
// assignee precondition, applies the update, and appends the audit
// entry, all in one transaction.
func (s *Store) Transition(ctx context.Context, id string, up incident.Update, entry incident.HistoryEntry) (*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Transition", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
		attribute.String("codeblue.incident.to_state", string(up.To)),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	inc, err := lockIncident(ctx, tx, id)
	if err != nil {
		return nil, spanErr(span, err)
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

	_, err = tx.Exec(ctx, `UPDATE incidents SET
			status = $2, assignee_id = $3, assignee_name = $4,
			assigned_at = $5, acknowledged_at = $6, started_at = $7, resolved_at = $8,
			resolution_notes = $9, resolved_by = $10
		WHERE incident_id = $1`,
		id, string(inc.Status), inc.AssigneeID, inc.AssigneeName,
		nullable(inc.AssignedAt), nullable(inc.AcknowledgedAt), nullable(inc.StartedAt), nullable(inc.ResolvedAt),
		inc.ResolutionNotes, inc.ResolvedBy,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("update incident: %w", err))
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return nil, spanErr(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return inc, nil
}

// AppendNote records a non-state-changing audit note on a non-terminal
// incident.
func (s *Store) AppendNote(ctx context.Context, id string, entry incident.HistoryEntry) (*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.AppendNote", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	inc, err := lockIncident(ctx, tx, id)
	if err != nil {
		return nil, spanErr(span, err)
	}
	if inc.Status.Terminal() {
		return nil, incident.ErrInvalidTransition
	}

	if entry.PreviousStatus == "" {
		entry.PreviousStatus = inc.Status
		entry.NewStatus = inc.Status
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return nil, spanErr(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return inc, nil
}

// ResolvedSince returns incidents resolved at or after the cutoff.
func (s *Store) ResolvedSince(ctx context.Context, cutoff time.Time) ([]*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ResolvedSince", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE status = $1 AND resolved_at >= $2`,
		string(incident.StateResolved), cutoff,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query resolved: %w", err))
	}
	defer rows.Close()
	return collectIncidents(rows)
}

func lockIncident(ctx context.Context, tx pgx.Tx, id string) (*incident.Incident, error) {
	inc, err := scanIncident(tx.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE incident_id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, incident.ErrNotFound
	}
	return inc, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, e incident.HistoryEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO incident_history (incident_id, employee_id, employee_name, action, previous_status, new_status, note, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.IncidentID, e.EmployeeID, e.EmployeeName, e.Action, string(e.PreviousStatus), string(e.NewStatus), e.Note, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// scanIncident scans a single row. Returns (nil, nil) when no row is
// found.
func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		inc                incident.Incident
		alertID            *string
		alertType, sev, st string
		assignedAt         *time.Time
		acknowledgedAt     *time.Time
		startedAt          *time.Time
		resolvedAt         *time.Time
	)

	err := row.Scan(
		&inc.ID, &alertID, &alertType, &inc.PatientID, &inc.Room, &sev, &st,
		&inc.AssigneeID, &inc.AssigneeName, &inc.CreatedAt,
		&assignedAt, &acknowledgedAt, &startedAt, &resolvedAt,
		&inc.ResolutionNotes, &inc.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	if alertID != nil {
		inc.AlertID = *alertID
	}
	inc.AlertType = alert.Type(alertType)
	inc.Severity = alert.Severity(sev)
	inc.Status = incident.State(st)
	inc.AssignedAt = deref(assignedAt)
	inc.AcknowledgedAt = deref(acknowledgedAt)
	inc.StartedAt = deref(startedAt)
	inc.ResolvedAt = deref(resolvedAt)
	return &inc, nil
}

func collectIncidents(rows pgx.Rows) ([]*incident.Incident, error) {
	var out []*incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

func nullable(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
