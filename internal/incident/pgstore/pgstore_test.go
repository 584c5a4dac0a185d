package pgstore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/codeblue/internal/alert"
	"github.com/linnemanlabs/codeblue/internal/incident"
	"github.com/linnemanlabs/codeblue/internal/incident/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("CODEBLUE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CODEBLUE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func newIncident(alertID string) *incident.Incident {
	return &incident.Incident{
		ID:        ulid.Make().String(),
		AlertID:   alertID,
		AlertType: alert.TypeCardiacArrest,
		PatientID: "P-1001",
		Room:      "204",
		Severity:  alert.SeverityCritical,
		Status:    incident.StateOpen,
		CreatedAt: time.Now().Truncate(time.Microsecond).UTC(),
	}
}

func createdEntry(inc *incident.Incident) incident.HistoryEntry {
	return incident.HistoryEntry{
		IncidentID:   inc.ID,
		EmployeeName: "SYSTEM",
		Action:       incident.ActionCreated,
		NewStatus:    incident.StateOpen,
		Note:         "Created from alert " + inc.AlertID,
		Timestamp:    inc.CreatedAt,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("a-" + ulid.Make().String())
	if err := s.Create(ctx, inc, createdEntry(inc)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok, err := s.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}
	if got.AlertID != inc.AlertID {
		t.Errorf("AlertID = %q, want %q", got.AlertID, inc.AlertID)
	}
	if got.Status != incident.StateOpen {
		t.Errorf("Status = %q, want OPEN", got.Status)
	}
	if !got.CreatedAt.Equal(inc.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, inc.CreatedAt)
	}
	if !got.ResolvedAt.IsZero() {
		t.Errorf("ResolvedAt = %v, want zero", got.ResolvedAt)
	}

	hist, err := s.History(ctx, inc.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Action != incident.ActionCreated {
		t.Fatalf("history = %+v, want single CREATED entry", hist)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for nonexistent ID")
	}
}

func TestCreateDuplicateAlert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	alertID := "a-" + ulid.Make().String()
	first := newIncident(alertID)
	if err := s.Create(ctx, first, createdEntry(first)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := newIncident(alertID)
	err := s.Create(ctx, second, createdEntry(second))
	if !errors.Is(err, incident.ErrDuplicateAlert) {
		t.Fatalf("Create: err = %v, want ErrDuplicateAlert", err)
	}

	got, ok, err := s.GetByAlertID(ctx, alertID)
	if err != nil || !ok {
		t.Fatalf("GetByAlertID: ok=%v err=%v", ok, err)
	}
	if got.ID != first.ID {
		t.Errorf("GetByAlertID = %s, want %s", got.ID, first.ID)
	}
}

func TestTransitionLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("a-" + ulid.Make().String())
	if err := s.Create(ctx, inc, createdEntry(inc)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now().Truncate(time.Microsecond).UTC()
	got, err := s.Transition(ctx, inc.ID, incident.Update{
		From:         []incident.State{incident.StateOpen},
		To:           incident.StateAssigned,
		AssigneeID:   "E-1001",
		AssigneeName: "Dr. Maya Okafor",
		AssignedAt:   now,
	}, incident.HistoryEntry{
		IncidentID:   inc.ID,
		EmployeeID:   "E-1001",
		EmployeeName: "Dr. Maya Okafor",
		Action:       incident.ActionAssigned,
		NewStatus:    incident.StateAssigned,
		Timestamp:    now,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != incident.StateAssigned || got.AssigneeID != "E-1001" {
		t.Fatalf("after transition: %+v", got)
	}
	if !got.AssignedAt.Equal(now) {
		t.Errorf("AssignedAt = %v, want %v", got.AssignedAt, now)
	}

	// wrong source state is rejected without touching the row
	_, err = s.Transition(ctx, inc.ID, incident.Update{
		From: []incident.State{incident.StateOpen},
		To:   incident.StateAssigned,
	}, incident.HistoryEntry{IncidentID: inc.ID})
	if !errors.Is(err, incident.ErrInvalidTransition) {
		t.Fatalf("Transition: err = %v, want ErrInvalidTransition", err)
	}
	cur, _, _ := s.Get(ctx, inc.ID)
	if cur.Status != incident.StateAssigned {
		t.Errorf("Status = %q, want ASSIGNED", cur.Status)
	}

	// assignee guard
	_, err = s.Transition(ctx, inc.ID, incident.Update{
		From:            []incident.State{incident.StateAssigned},
		To:              incident.StateAcknowledged,
		RequireAssignee: "E-9999",
	}, incident.HistoryEntry{IncidentID: inc.ID})
	if !errors.Is(err, incident.ErrNotAssignee) {
		t.Fatalf("Transition: err = %v, want ErrNotAssignee", err)
	}

	// history previous_status filled from the row when omitted
	hist, err := s.History(ctx, inc.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	last := hist[len(hist)-1]
	if last.PreviousStatus != incident.StateOpen {
		t.Errorf("PreviousStatus = %q, want OPEN", last.PreviousStatus)
	}
}

func TestTransitionMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Transition(context.Background(), "nonexistent-id", incident.Update{
		From: []incident.State{incident.StateOpen},
		To:   incident.StateAssigned,
	}, incident.HistoryEntry{})
	if !errors.Is(err, incident.ErrNotFound) {
		t.Fatalf("Transition: err = %v, want ErrNotFound", err)
	}
}

func TestAppendNoteAndTerminalGuard(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("a-" + ulid.Make().String())
	if err := s.Create(ctx, inc, createdEntry(inc)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.AppendNote(ctx, inc.ID, incident.HistoryEntry{
		IncidentID:   inc.ID,
		EmployeeID:   "E-2001",
		EmployeeName: "Nurse Daniel Reyes",
		Action:       incident.ActionNoteAdded,
		Note:         "patient stable",
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("AppendNote: %v", err)
	}

	if _, err := s.Transition(ctx, inc.ID, incident.Update{
		From:            []incident.State{incident.StateOpen},
		To:              incident.StateResolved,
		ResolvedAt:      time.Now().UTC(),
		ResolutionNotes: "closed for test",
		ResolvedBy:      "E-2001",
	}, incident.HistoryEntry{IncidentID: inc.ID, Action: incident.ActionResolved, NewStatus: incident.StateResolved, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("Transition to RESOLVED: %v", err)
	}

	_, err := s.AppendNote(ctx, inc.ID, incident.HistoryEntry{IncidentID: inc.ID, Action: incident.ActionNoteAdded})
	if !errors.Is(err, incident.ErrInvalidTransition) {
		t.Fatalf("AppendNote on resolved: err = %v, want ErrInvalidTransition", err)
	}
}

func TestListAndResolvedSince(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	cutoff := time.Now().Truncate(time.Microsecond).UTC()

	open := newIncident("a-" + ulid.Make().String())
	if err := s.Create(ctx, open, createdEntry(open)); err != nil {
		t.Fatalf("Create open: %v", err)
	}

	resolved := newIncident("a-" + ulid.Make().String())
	if err := s.Create(ctx, resolved, createdEntry(resolved)); err != nil {
		t.Fatalf("Create resolved: %v", err)
	}
	if _, err := s.Transition(ctx, resolved.ID, incident.Update{
		From:            []incident.State{incident.StateOpen},
		To:              incident.StateResolved,
		ResolvedAt:      cutoff.Add(time.Second),
		ResolutionNotes: "done",
		ResolvedBy:      "E-1001",
	}, incident.HistoryEntry{IncidentID: resolved.ID, Action: incident.ActionResolved, NewStatus: incident.StateResolved, Timestamp: cutoff}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	openList, err := s.List(ctx, incident.StateOpen)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !containsID(openList, open.ID) {
		t.Errorf("List(OPEN) missing %s", open.ID)
	}
	if containsID(openList, resolved.ID) {
		t.Errorf("List(OPEN) includes resolved incident %s", resolved.ID)
	}

	unassigned, err := s.ListUnassigned(ctx)
	if err != nil {
		t.Fatalf("ListUnassigned: %v", err)
	}
	if !containsID(unassigned, open.ID) {
		t.Errorf("ListUnassigned missing %s", open.ID)
	}

	since, err := s.ResolvedSince(ctx, cutoff)
	if err != nil {
		t.Fatalf("ResolvedSince: %v", err)
	}
	if !containsID(since, resolved.ID) {
		t.Errorf("ResolvedSince missing %s", resolved.ID)
	}
}

func TestConcurrentTransitionSingleWinner(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("a-" + ulid.Make().String())
	if err := s.Create(ctx, inc, createdEntry(inc)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 8
	errs := make(chan error, n)
	for i := range n {
		go func() {
			_, err := s.Transition(ctx, inc.ID, incident.Update{
				From:         []incident.State{incident.StateOpen},
				To:           incident.StateAssigned,
				AssigneeID:   fmt.Sprintf("E-%d", i),
				AssigneeName: fmt.Sprintf("Responder %d", i),
				AssignedAt:   time.Now().UTC(),
			}, incident.HistoryEntry{
				IncidentID: inc.ID,
				Action:     incident.ActionAssigned,
				NewStatus:  incident.StateAssigned,
				Timestamp:  time.Now().UTC(),
			})
			errs <- err
		}()
	}

	var wins int
	for range n {
		if err := <-errs; err == nil {
			wins++
		} else if !errors.Is(err, incident.ErrInvalidTransition) {
			t.Fatalf("Transition: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}

	hist, _ := s.History(ctx, inc.ID)
	if len(hist) != 2 {
		t.Errorf("history length = %d, want 2 (CREATED + one ASSIGNED)", len(hist))
	}
}

func containsID(incs []*incident.Incident, id string) bool {
	for _, inc := range incs {
		if inc.ID == id {
			return true
		}
	}
	return false
}
