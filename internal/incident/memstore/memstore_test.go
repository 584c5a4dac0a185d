package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/codeblue/internal/alert"
	"github.com/linnemanlabs/codeblue/internal/incident"
)

func seed(t *testing.T, s *Store, id, alertID string) *incident.Incident {
	t.Helper()
	inc := &incident.Incident{
		ID:        id,
		AlertID:   alertID,
		AlertType: alert.TypeCardiacArrest,
		PatientID: "P-1001",
		Room:      "204",
		Severity:  alert.SeverityCritical,
		Status:    incident.StateOpen,
		CreatedAt: time.Now(),
	}
	entry := incident.HistoryEntry{
		IncidentID:   id,
		EmployeeName: "SYSTEM",
		Action:       incident.ActionCreated,
		NewStatus:    incident.StateOpen,
		Timestamp:    inc.CreatedAt,
	}
	if err := s.Create(context.Background(), inc, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return inc
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "alert-1")

	got, ok, err := s.Get(ctx, "inc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected incident to be found")
	}
	if got.AlertID != "alert-1" {
		t.Errorf("AlertID = %q, want %q", got.AlertID, "alert-1")
	}
	if got.Status != incident.StateOpen {
		t.Errorf("Status = %q, want %q", got.Status, incident.StateOpen)
	}

	hist, err := s.History(ctx, "inc-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Action != incident.ActionCreated {
		t.Fatalf("history = %+v, want single CREATED entry", hist)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_CreateDuplicateAlert(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "alert-dup")

	err := s.Create(ctx, &incident.Incident{
		ID:      "inc-2",
		AlertID: "alert-dup",
		Status:  incident.StateOpen,
	}, incident.HistoryEntry{IncidentID: "inc-2"})
	if err != incident.ErrDuplicateAlert {
		t.Fatalf("Create: err = %v, want ErrDuplicateAlert", err)
	}

	// the original mapping survives
	got, ok, _ := s.GetByAlertID(ctx, "alert-dup")
	if !ok || got.ID != "inc-1" {
		t.Fatalf("GetByAlertID = %+v, want inc-1", got)
	}
}

func TestStore_GetByAlertID(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "alert-1")

	got, ok, err := s.GetByAlertID(ctx, "alert-1")
	if err != nil {
		t.Fatalf("GetByAlertID: %v", err)
	}
	if !ok || got.ID != "inc-1" {
		t.Fatalf("GetByAlertID = %+v, want inc-1", got)
	}

	if _, ok, _ := s.GetByAlertID(ctx, "nope"); ok {
		t.Fatal("expected ok=false for unknown alert id")
	}
}

func TestStore_ManualIncidentsSkipAlertIndex(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-a", "")
	seed(t, s, "inc-b", "")

	got, ok, _ := s.Get(ctx, "inc-b")
	if !ok || got.ID != "inc-b" {
		t.Fatal("expected both manual incidents to coexist")
	}
}

func TestStore_ListFiltersByStatus(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")
	seed(t, s, "inc-2", "a-2")

	if _, err := s.Transition(ctx, "inc-2", incident.Update{
		From:         []incident.State{incident.StateOpen},
		To:           incident.StateAssigned,
		AssigneeID:   "E-1001",
		AssigneeName: "Dr. Maya Okafor",
		AssignedAt:   time.Now(),
	}, incident.HistoryEntry{IncidentID: "inc-2", Action: incident.ActionAssigned, NewStatus: incident.StateAssigned}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	open, err := s.List(ctx, incident.StateOpen)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(open) != 1 || open[0].ID != "inc-1" {
		t.Fatalf("List(OPEN) = %+v, want [inc-1]", open)
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List(\"\") = %d incidents, want 2", len(all))
	}
}

func TestStore_ListUnassigned(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")
	seed(t, s, "inc-2", "a-2")

	_, _ = s.Transition(ctx, "inc-1", incident.Update{
		From:       []incident.State{incident.StateOpen},
		To:         incident.StateAssigned,
		AssigneeID: "E-1001",
		AssignedAt: time.Now(),
	}, incident.HistoryEntry{IncidentID: "inc-1"})

	got, err := s.ListUnassigned(ctx)
	if err != nil {
		t.Fatalf("ListUnassigned: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inc-2" {
		t.Fatalf("ListUnassigned = %+v, want [inc-2]", got)
	}
}

func TestStore_TransitionRejectsWrongState(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")

	// OPEN incident cannot be acknowledged
	_, err := s.Transition(ctx, "inc-1", incident.Update{
		From: []incident.State{incident.StateAssigned},
		To:   incident.StateAcknowledged,
	}, incident.HistoryEntry{IncidentID: "inc-1"})
	if err != incident.ErrInvalidTransition {
		t.Fatalf("Transition: err = %v, want ErrInvalidTransition", err)
	}

	// rejected transition leaves state and history untouched
	got, _, _ := s.Get(ctx, "inc-1")
	if got.Status != incident.StateOpen {
		t.Errorf("Status = %q, want OPEN", got.Status)
	}
	hist, _ := s.History(ctx, "inc-1")
	if len(hist) != 1 {
		t.Errorf("history length = %d, want 1", len(hist))
	}
}

func TestStore_TransitionRejectsWrongAssignee(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")

	_, _ = s.Transition(ctx, "inc-1", incident.Update{
		From:       []incident.State{incident.StateOpen},
		To:         incident.StateAssigned,
		AssigneeID: "E-1001",
		AssignedAt: time.Now(),
	}, incident.HistoryEntry{IncidentID: "inc-1"})

	_, err := s.Transition(ctx, "inc-1", incident.Update{
		From:            []incident.State{incident.StateAssigned},
		To:              incident.StateAcknowledged,
		RequireAssignee: "E-9999",
	}, incident.HistoryEntry{IncidentID: "inc-1"})
	if err != incident.ErrNotAssignee {
		t.Fatalf("Transition: err = %v, want ErrNotAssignee", err)
	}
}

func TestStore_TransitionMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Transition(context.Background(), "nope", incident.Update{
		From: []incident.State{incident.StateOpen},
		To:   incident.StateAssigned,
	}, incident.HistoryEntry{})
	if err != incident.ErrNotFound {
		t.Fatalf("Transition: err = %v, want ErrNotFound", err)
	}
}

func TestStore_TransitionFillsPreviousStatus(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")

	if _, err := s.Transition(ctx, "inc-1", incident.Update{
		From:       []incident.State{incident.StateOpen},
		To:         incident.StateAssigned,
		AssigneeID: "E-1001",
	}, incident.HistoryEntry{
		IncidentID: "inc-1",
		Action:     incident.ActionAssigned,
		NewStatus:  incident.StateAssigned,
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	hist, _ := s.History(ctx, "inc-1")
	last := hist[len(hist)-1]
	if last.PreviousStatus != incident.StateOpen {
		t.Errorf("PreviousStatus = %q, want OPEN", last.PreviousStatus)
	}
}

func TestStore_AppendNote(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")

	if _, err := s.AppendNote(ctx, "inc-1", incident.HistoryEntry{
		IncidentID:   "inc-1",
		EmployeeID:   "E-2001",
		EmployeeName: "Nurse Daniel Reyes",
		Action:       incident.ActionNoteAdded,
		Note:         "patient stable",
		Timestamp:    time.Now(),
	}); err != nil {
		t.Fatalf("AppendNote: %v", err)
	}

	hist, _ := s.History(ctx, "inc-1")
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[1].Note != "patient stable" {
		t.Errorf("Note = %q, want %q", hist[1].Note, "patient stable")
	}

	// notes don't change state
	got, _, _ := s.Get(ctx, "inc-1")
	if got.Status != incident.StateOpen {
		t.Errorf("Status = %q, want OPEN", got.Status)
	}
}

func TestStore_AppendNoteTerminal(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")

	_, _ = s.Transition(ctx, "inc-1", incident.Update{
		From:       []incident.State{incident.StateOpen},
		To:         incident.StateResolved,
		ResolvedAt: time.Now(),
	}, incident.HistoryEntry{IncidentID: "inc-1"})

	_, err := s.AppendNote(ctx, "inc-1", incident.HistoryEntry{IncidentID: "inc-1"})
	if err != incident.ErrInvalidTransition {
		t.Fatalf("AppendNote: err = %v, want ErrInvalidTransition", err)
	}
}

func TestStore_ResolvedSince(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-old", "a-old")
	seed(t, s, "inc-new", "a-new")

	cutoff := time.Now()
	_, _ = s.Transition(ctx, "inc-old", incident.Update{
		From:       []incident.State{incident.StateOpen},
		To:         incident.StateResolved,
		ResolvedAt: cutoff.Add(-time.Hour),
	}, incident.HistoryEntry{IncidentID: "inc-old"})
	_, _ = s.Transition(ctx, "inc-new", incident.Update{
		From:       []incident.State{incident.StateOpen},
		To:         incident.StateResolved,
		ResolvedAt: cutoff.Add(time.Minute),
	}, incident.HistoryEntry{IncidentID: "inc-new"})

	got, err := s.ResolvedSince(ctx, cutoff)
	if err != nil {
		t.Fatalf("ResolvedSince: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inc-new" {
		t.Fatalf("ResolvedSince = %+v, want [inc-new]", got)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seed(t, s, "inc-1", "a-1")

	got, _, _ := s.Get(ctx, "inc-1")
	got.Status = incident.StateResolved

	again, _, _ := s.Get(ctx, "inc-1")
	if again.Status != incident.StateOpen {
		t.Error("mutating a returned incident leaked into the store")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	for i := range n {
		id := fmt.Sprintf("inc-%d", i)
		alertID := fmt.Sprintf("a-%d", i)

		go func() {
			defer wg.Done()
			_ = s.Create(ctx, &incident.Incident{
				ID:        id,
				AlertID:   alertID,
				Status:    incident.StateOpen,
				CreatedAt: time.Now(),
			}, incident.HistoryEntry{IncidentID: id})
		}()

		go func() {
			defer wg.Done()
			_, _, _ = s.Get(ctx, id)
			_, _, _ = s.GetByAlertID(ctx, alertID)
			_, _ = s.List(ctx, "")
		}()
	}

	wg.Wait()
}
