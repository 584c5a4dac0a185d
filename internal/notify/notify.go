// Package notify records and best-effort delivers assignment
// notifications to responders. Delivery never rolls back or blocks the
// incident transition that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/codeblue/internal/incident"
	"github.com/linnemanlabs/codeblue/internal/oncall"
)

const httpTimeout = 10 * time.Second

// Delivery outcomes recorded on a Notification.
const (
	OutcomeDelivered = "DELIVERED"
	OutcomeFailed    = "FAILED"
	OutcomeRecorded  = "RECORDED" // no webhook configured
)

// Notification is one append-only record that a responder was informed
// of an assignment.
type Notification struct {
	ID            string    `json:"notification_id"`
	IncidentID    string    `json:"incident_id"`
	RecipientID   string    `json:"recipient_id"`
	RecipientName string    `json:"recipient_name"`
	Message       string    `json:"message"`
	Outcome       string    `json:"outcome"`
	CreatedAt     time.Time `json:"created_at"`
}

// Dispatcher creates Notification records and posts them to an
// optional webhook. With no webhook URL configured the record is kept
// and delivery is skipped.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger

	mu      sync.Mutex
	records []Notification // append-only, oldest first
}

// New creates a Dispatcher. logger may be nil.
func New(webhookURL string, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify records that r was assigned to inc and attempts webhook
// delivery. The record is kept regardless of the delivery outcome; a
// non-nil error means delivery failed, never that the record is lost.
func (d *Dispatcher) Notify(ctx context.Context, inc *incident.Incident, r oncall.Responder) error {
	n := Notification{
		ID:            ulid.Make().String(),
		IncidentID:    inc.ID,
		RecipientID:   r.EmployeeID,
		RecipientName: r.Name,
		Message: fmt.Sprintf("%s incident in room %s (patient %s) assigned to you",
			inc.AlertType, inc.Room, inc.PatientID),
		Outcome:   OutcomeRecorded,
		CreatedAt: time.Now().UTC(),
	}

	var deliveryErr error
	if d.webhookURL != "" {
		if deliveryErr = d.deliver(ctx, n, inc, r); deliveryErr != nil {
			n.Outcome = OutcomeFailed
		} else {
			n.Outcome = OutcomeDelivered
		}
	}

	d.mu.Lock()
	d.records = append(d.records, n)
	d.mu.Unlock()

	d.logger.Info(ctx, "notification recorded",
		"notification_id", n.ID,
		"incident_id", n.IncidentID,
		"recipient_id", n.RecipientID,
		"outcome", n.Outcome,
	)
	return deliveryErr
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification, inc *incident.Incident, r oncall.Responder) error {
	payload := map[string]any{
		"notification_id": n.ID,
		"incident_id":     inc.ID,
		"alert_type":      inc.AlertType,
		"severity":        inc.Severity,
		"patient_id":      inc.PatientID,
		"room":            inc.Room,
		"recipient_id":    r.EmployeeID,
		"recipient_name":  r.Name,
		"recipient_role":  r.Role,
		"message":         n.Message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// ListFor returns notifications for a recipient, newest first.
func (d *Dispatcher) ListFor(recipientID string) []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Notification
	for i := len(d.records) - 1; i >= 0; i-- {
		if d.records[i].RecipientID == recipientID {
			out = append(out, d.records[i])
		}
	}
	return out
}
