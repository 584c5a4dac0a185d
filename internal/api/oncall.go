package api

import (
	"encoding/json"
	"net/http"
)

func (a *API) handleOncallCurrent(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}

	resp, ok := a.directory.Current(role)
	if !ok {
		writeError(w, http.StatusNotFound, "no responder available for role")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleOncallAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IncidentID string `json:"incident_id"`
		EmployeeID string `json:"employee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.IncidentID == "" || req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "incident_id and employee_id are required")
		return
	}

	inc, err := a.incidents.AssignTo(r.Context(), req.IncidentID, req.EmployeeID)
	if err != nil {
		a.writeIncidentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleOncallSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.directory.Schedules())
}
