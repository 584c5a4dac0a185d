// Package alert defines the clinical alert model: the enumerated alert
// types, their fixed severity grading, and the ordered responder-role
// priorities used for incident auto-assignment.
package alert

import (
	"math/rand/v2"
	"time"
)

// Type is an enumerated clinical alert type.
type Type string

// Severity is the clinical urgency grade derived from the alert type.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

const (
	TypeCardiacArrest       Type = "CARDIAC_ARREST"
	TypeCardiacAbnormal     Type = "CARDIAC_ABNORMAL"
	TypeRespiratoryDistress Type = "RESPIRATORY_DISTRESS"
	TypeO2SaturationLow     Type = "O2_SATURATION_LOW"
	TypeStrokeSuspected     Type = "STROKE_SUSPECTED"
	TypeSeizureDetected     Type = "SEIZURE_DETECTED"
	TypeHypotensionSevere   Type = "HYPOTENSION_SEVERE"
	TypeSepsisSuspected     Type = "SEPSIS_SUSPECTED"
	TypeMedicationDelayed   Type = "MEDICATION_DELAYED"
	TypeMedicationError     Type = "MEDICATION_ERROR"
	TypeEquipMalfunction    Type = "EQUIPMENT_MALFUNCTION"
	TypeEquipLowBattery     Type = "EQUIPMENT_LOW_BATTERY"
	TypeFallDetected        Type = "FALL_DETECTED"
)

// profile fixes the severity grade and the ordered responder-role
// priorities for one alert type. Role order matters: auto-assignment
// walks it front to back.
type profile struct {
	severity Severity
	roles    []string
}

var profiles = map[Type]profile{
	TypeCardiacArrest:       {SeverityCritical, []string{"EMERGENCY_DOCTOR", "CARDIOLOGIST"}},
	TypeCardiacAbnormal:     {SeverityCritical, []string{"EMERGENCY_DOCTOR", "CARDIOLOGIST"}},
	TypeRespiratoryDistress: {SeverityCritical, []string{"EMERGENCY_DOCTOR", "PULMONOLOGIST", "NURSE"}},
	TypeO2SaturationLow:     {SeverityHigh, []string{"NURSE", "EMERGENCY_DOCTOR", "PULMONOLOGIST"}},
	TypeStrokeSuspected:     {SeverityCritical, []string{"EMERGENCY_DOCTOR", "NEUROLOGIST"}},
	TypeSeizureDetected:     {SeverityHigh, []string{"NURSE", "EMERGENCY_DOCTOR", "NEUROLOGIST"}},
	TypeHypotensionSevere:   {SeverityHigh, []string{"NURSE", "EMERGENCY_DOCTOR"}},
	TypeSepsisSuspected:     {SeverityCritical, []string{"EMERGENCY_DOCTOR", "INFECTIOUS_DISEASE"}},
	TypeMedicationDelayed:   {SeverityMedium, []string{"NURSE"}},
	TypeMedicationError:     {SeverityHigh, []string{"NURSE", "EMERGENCY_DOCTOR"}},
	TypeEquipMalfunction:    {SeverityMedium, []string{"BIOMEDICAL_ENGINEER", "NURSE"}},
	TypeEquipLowBattery:     {SeverityLow, []string{"BIOMEDICAL_ENGINEER", "NURSE"}},
	TypeFallDetected:        {SeverityMedium, []string{"NURSE", "EMERGENCY_DOCTOR"}},
}

// ordered list for Random and API listings; kept stable so output is
// deterministic given a seeded source.
var allTypes = []Type{
	TypeCardiacArrest,
	TypeCardiacAbnormal,
	TypeRespiratoryDistress,
	TypeO2SaturationLow,
	TypeStrokeSuspected,
	TypeSeizureDetected,
	TypeHypotensionSevere,
	TypeSepsisSuspected,
	TypeMedicationDelayed,
	TypeMedicationError,
	TypeEquipMalfunction,
	TypeEquipLowBattery,
	TypeFallDetected,
}

// All returns every known alert type in a stable order.
func All() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is a known alert type.
func Valid(t Type) bool {
	_, ok := profiles[t]
	return ok
}

// Random picks one of the known alert types uniformly.
func Random() Type {
	return allTypes[rand.IntN(len(allTypes))]
}

// SeverityFor returns the fixed severity grade for t.
// Unknown types grade MEDIUM.
func SeverityFor(t Type) Severity {
	if p, ok := profiles[t]; ok {
		return p.severity
	}
	return SeverityMedium
}

// RolesFor returns the ordered responder-role priorities for t.
// Unknown types fall back to the general nursing staff.
func RolesFor(t Type) []string {
	if p, ok := profiles[t]; ok {
		out := make([]string, len(p.roles))
		copy(out, p.roles)
		return out
	}
	return []string{"NURSE"}
}

// Alert is a reported clinical event. Immutable once published.
type Alert struct {
	ID        string    `json:"alert_id"`
	Type      Type      `json:"type"`
	Severity  Severity  `json:"severity"`
	PatientID string    `json:"patient_id"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is the queue message schema for a published alert. It is the
// Alert itself; the alias names the wire contract.
type Event = Alert

// SubjectAlerts is the broker subject alert events are published on.
const SubjectAlerts = "alerts"

// QueueGroupCoordinator is the consumer queue group for the incident
// coordinator, so multiple instances share one delivery.
const QueueGroupCoordinator = "incident-coordinator"
