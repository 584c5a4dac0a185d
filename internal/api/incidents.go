package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/codeblue/internal/incident"
)

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	status := incident.State(r.URL.Query().Get("status"))
	if status != "" && !incident.ValidState(status) {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	incs, err := a.incidents.List(r.Context(), status)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	if incs == nil {
		incs = []*incident.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incs,
		"count":     len(incs),
	})
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("codeblue.incident.id", id))

	inc, ok, err := a.incidents.Get(r.Context(), id)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}

	hist, err := a.incidents.History(r.Context(), id)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("codeblue.incident.status", string(inc.Status)))

	writeJSON(w, http.StatusOK, map[string]any{
		"incident": inc,
		"history":  hist,
	})
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeActor(w, r)
	if !ok {
		return
	}

	inc, err := a.incidents.Acknowledge(r.Context(), chi.URLParam(r, "id"), req.EmployeeID, req.EmployeeName)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeActor(w, r)
	if !ok {
		return
	}

	inc, err := a.incidents.StartWork(r.Context(), chi.URLParam(r, "id"), req.EmployeeID, req.EmployeeName, req.Note)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleAddNote(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeActor(w, r)
	if !ok {
		return
	}
	if req.Note == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}

	inc, err := a.incidents.AddNote(r.Context(), chi.URLParam(r, "id"), req.EmployeeID, req.EmployeeName, req.Note)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeActor(w, r)
	if !ok {
		return
	}

	inc, err := a.incidents.Resolve(r.Context(), chi.URLParam(r, "id"), req.EmployeeID, req.EmployeeName, req.Resolution)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	sum, err := a.incidents.Metrics(r.Context(), incident.WindowToday())
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
