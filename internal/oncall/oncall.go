// Package oncall holds the on-call responder directory: per-role
// schedules ordered by escalation tier, with pure read resolution.
// Schedule data is static reference data; incident processing never
// mutates it. Availability toggles are an administrative operation.
package oncall

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Responder is one tier of a role's escalation schedule. Each tier
// holds exactly one responder.
type Responder struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Tier       int    `json:"tier"`
	Available  bool   `json:"available"`
}

// Directory resolves the current on-call responder per role and
// supports escalation to the next tier.
type Directory struct {
	mu        sync.RWMutex
	schedules map[string][]Responder // role -> tiers, ascending
}

// NewDirectory builds a directory from schedule entries. Tiers are
// sorted ascending within each role; tier numbers in a role must be
// unique.
func NewDirectory(entries []Responder) (*Directory, error) {
	schedules := make(map[string][]Responder)
	for _, e := range entries {
		if e.Role == "" || e.EmployeeID == "" {
			return nil, fmt.Errorf("schedule entry missing role or employee id: %+v", e)
		}
		if e.Tier < 1 {
			return nil, fmt.Errorf("schedule entry for %s has tier %d, tiers start at 1", e.EmployeeID, e.Tier)
		}
		schedules[e.Role] = append(schedules[e.Role], e)
	}
	for role, tiers := range schedules {
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].Tier < tiers[j].Tier })
		for i := 1; i < len(tiers); i++ {
			if tiers[i].Tier == tiers[i-1].Tier {
				return nil, fmt.Errorf("role %s has duplicate tier %d", role, tiers[i].Tier)
			}
		}
		schedules[role] = tiers
	}
	return &Directory{schedules: schedules}, nil
}

// Current returns the first available tier for role, in tier order.
// ok is false when the role is unknown or every tier is unavailable.
func (d *Directory) Current(role string) (Responder, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.schedules[role] {
		if r.Available {
			return r, true
		}
	}
	return Responder{}, false
}

// Escalate returns the next available tier after fromTier for role, or
// ok=false when fromTier is the last tier or nothing later is
// available. The read does not alter schedule state.
func (d *Directory) Escalate(role string, fromTier int) (Responder, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.schedules[role] {
		if r.Tier > fromTier && r.Available {
			return r, true
		}
	}
	return Responder{}, false
}

// Find looks up a responder anywhere in the directory by employee id.
func (d *Directory) Find(employeeID string) (Responder, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, tiers := range d.schedules {
		for _, r := range tiers {
			if r.EmployeeID == employeeID {
				return r, true
			}
		}
	}
	return Responder{}, false
}

// Schedules returns a copy of every role's tier list.
func (d *Directory) Schedules() map[string][]Responder {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]Responder, len(d.schedules))
	for role, tiers := range d.schedules {
		cp := make([]Responder, len(tiers))
		copy(cp, tiers)
		out[role] = cp
	}
	return out
}

// SetAvailability flips a responder's availability window. Returns an
// error when the employee is not on any schedule.
func (d *Directory) SetAvailability(employeeID string, available bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for role, tiers := range d.schedules {
		for i := range tiers {
			if tiers[i].EmployeeID == employeeID {
				d.schedules[role][i].Available = available
				return nil
			}
		}
	}
	return fmt.Errorf("employee %s is not on any on-call schedule", employeeID)
}

// LoadRoster reads schedule entries from a JSON file: an array of
// responder objects in the Responder wire shape. Entry validation
// happens in NewDirectory.
func LoadRoster(path string) ([]Responder, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	var entries []Responder
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("roster file %s holds no schedule entries", path)
	}
	return entries, nil
}

// DefaultRoster is the seed hospital schedule used when no external
// schedule is configured.
func DefaultRoster() []Responder {
	return []Responder{
		{EmployeeID: "E-1001", Name: "Dr. Maya Okafor", Role: "EMERGENCY_DOCTOR", Tier: 1, Available: true},
		{EmployeeID: "E-1002", Name: "Dr. Bram Feldt", Role: "EMERGENCY_DOCTOR", Tier: 2, Available: true},
		{EmployeeID: "E-2001", Name: "Nurse Ana Villanueva", Role: "NURSE", Tier: 1, Available: true},
		{EmployeeID: "E-2002", Name: "Nurse Tomasz Krol", Role: "NURSE", Tier: 2, Available: true},
		{EmployeeID: "E-2003", Name: "Nurse Ha-eun Seo", Role: "NURSE", Tier: 3, Available: true},
		{EmployeeID: "E-3001", Name: "Dr. Lucia Ferraro", Role: "CARDIOLOGIST", Tier: 1, Available: true},
		{EmployeeID: "E-3002", Name: "Dr. Henrik Valde", Role: "NEUROLOGIST", Tier: 1, Available: true},
		{EmployeeID: "E-3003", Name: "Dr. Priya Raghavan", Role: "PULMONOLOGIST", Tier: 1, Available: true},
		{EmployeeID: "E-3004", Name: "Dr. Samuel Adeyemi", Role: "INFECTIOUS_DISEASE", Tier: 1, Available: true},
		{EmployeeID: "E-4001", Name: "Jonas Lindqvist", Role: "BIOMEDICAL_ENGINEER", Tier: 1, Available: true},
		{EmployeeID: "E-4002", Name: "Mina Park", Role: "BIOMEDICAL_ENGINEER", Tier: 2, Available: true},
	}
}
