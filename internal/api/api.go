// Package api exposes the escalation pipeline over HTTP: alert
// listing and manual triggering, incident lifecycle operations, and
// the on-call directory. Validation happens here, before requests
// reach the state machine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/codeblue/internal/alert"
	"github.com/linnemanlabs/codeblue/internal/incident"
	"github.com/linnemanlabs/codeblue/internal/oncall"
)

// Generator defines the alert operations the API needs.
type Generator interface {
	Trigger(ctx context.Context, typ alert.Type) (alert.Alert, error)
	Recent() []alert.Alert
}

// IncidentService defines the incident operations the API needs.
type IncidentService interface {
	Get(ctx context.Context, id string) (*incident.Incident, bool, error)
	List(ctx context.Context, status incident.State) ([]*incident.Incident, error)
	History(ctx context.Context, id string) ([]incident.HistoryEntry, error)
	Acknowledge(ctx context.Context, id, employeeID, employeeName string) (*incident.Incident, error)
	StartWork(ctx context.Context, id, employeeID, employeeName, note string) (*incident.Incident, error)
	AddNote(ctx context.Context, id, employeeID, employeeName, note string) (*incident.Incident, error)
	Resolve(ctx context.Context, id, employeeID, employeeName, resolutionNotes string) (*incident.Incident, error)
	AssignTo(ctx context.Context, incidentID, employeeID string) (*incident.Incident, error)
	Metrics(ctx context.Context, cutoff time.Time) (*incident.Summary, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	gen       Generator
	incidents IncidentService
	directory *oncall.Directory
}

// New creates a new API handler.
func New(logger log.Logger, gen Generator, incidents IncidentService, directory *oncall.Directory) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if incidents == nil {
		panic(xerrors.New("incident service is required"))
	}
	if directory == nil {
		panic(xerrors.New("on-call directory is required"))
	}
	return &API{
		logger:    logger,
		gen:       gen,
		incidents: incidents,
		directory: directory,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/alerts", a.handleListAlerts)
	r.Post("/alerts/manual", a.handleManualAlert)

	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", a.handleListIncidents)
		// static route first so "metrics" is never read as an id
		r.Get("/metrics", a.handleMetrics)
		r.Get("/{id}", a.handleGetIncident)
		r.Patch("/{id}/acknowledge", a.handleAcknowledge)
		r.Patch("/{id}/start", a.handleStart)
		r.Post("/{id}/notes", a.handleAddNote)
		r.Patch("/{id}/resolve", a.handleResolve)
	})

	r.Route("/oncall", func(r chi.Router) {
		r.Get("/current", a.handleOncallCurrent)
		r.Post("/assign", a.handleOncallAssign)
		r.Get("/schedules", a.handleOncallSchedules)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeIncidentError maps domain errors onto HTTP statuses.
func (a *API) writeIncidentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, incident.ErrNotFound):
		writeError(w, http.StatusNotFound, "incident not found")
	case errors.Is(err, incident.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid state transition")
	case errors.Is(err, incident.ErrNotAssignee):
		writeError(w, http.StatusConflict, "not the assigned responder")
	case errors.Is(err, incident.ErrEmptyResolutionNotes):
		writeError(w, http.StatusBadRequest, "resolution_notes must not be empty")
	default:
		a.logger.Error(r.Context(), err, "incident operation failed", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// actorRequest is the common identity body on lifecycle endpoints.
type actorRequest struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Note         string `json:"note"`
	Resolution   string `json:"resolution_notes"`
}

// decodeActor parses and validates the request body. A false return
// means the response is already written.
func (a *API) decodeActor(w http.ResponseWriter, r *http.Request) (actorRequest, bool) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return req, false
	}
	if req.EmployeeID == "" || req.EmployeeName == "" {
		writeError(w, http.StatusBadRequest, "employee_id and employee_name are required")
		return req, false
	}
	return req, true
}
