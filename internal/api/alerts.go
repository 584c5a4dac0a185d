package api

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/codeblue/internal/alert"
)

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	var recent []alert.Alert
	if a.gen != nil {
		recent = a.gen.Recent()
	}
	if recent == nil {
		recent = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": recent,
		"count":  len(recent),
	})
}

func (a *API) handleManualAlert(w http.ResponseWriter, r *http.Request) {
	if a.gen == nil {
		writeError(w, http.StatusServiceUnavailable, "alert generator not running")
		return
	}

	var req struct {
		Type alert.Type `json:"type"`
	}
	// empty body means "random type"
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Type != "" && !alert.Valid(req.Type) {
		writeError(w, http.StatusBadRequest, "unknown alert type")
		return
	}

	al, err := a.gen.Trigger(r.Context(), req.Type)
	if err != nil {
		a.logger.Error(r.Context(), err, "manual alert failed", "type", req.Type)
		writeError(w, http.StatusBadGateway, "alert could not be published")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("codeblue.alert.id", al.ID),
		attribute.String("codeblue.alert.type", string(al.Type)),
	)

	writeJSON(w, http.StatusAccepted, al)
}
