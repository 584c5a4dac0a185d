package alert

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSeverityFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  Type
		want Severity
	}{
		{TypeCardiacArrest, SeverityCritical},
		{TypeCardiacAbnormal, SeverityCritical},
		{TypeO2SaturationLow, SeverityHigh},
		{TypeMedicationDelayed, SeverityMedium},
		{TypeEquipLowBattery, SeverityLow},
		{Type("NOT_A_TYPE"), SeverityMedium},
	}

	for _, tt := range tests {
		if got := SeverityFor(tt.typ); got != tt.want {
			t.Errorf("SeverityFor(%s) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestRolesFor_OrderPreserved(t *testing.T) {
	t.Parallel()

	roles := RolesFor(TypeO2SaturationLow)
	want := []string{"NURSE", "EMERGENCY_DOCTOR", "PULMONOLOGIST"}
	if len(roles) != len(want) {
		t.Fatalf("RolesFor returned %d roles, want %d", len(roles), len(want))
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("roles[%d] = %q, want %q", i, roles[i], want[i])
		}
	}
}

func TestRolesFor_UnknownDefaultsToNurse(t *testing.T) {
	t.Parallel()

	roles := RolesFor(Type("NOT_A_TYPE"))
	if len(roles) != 1 || roles[0] != "NURSE" {
		t.Errorf("RolesFor(unknown) = %v, want [NURSE]", roles)
	}
}

func TestRolesFor_ReturnsCopy(t *testing.T) {
	t.Parallel()

	roles := RolesFor(TypeCardiacArrest)
	roles[0] = "MUTATED"
	if again := RolesFor(TypeCardiacArrest); again[0] != "EMERGENCY_DOCTOR" {
		t.Error("RolesFor exposed internal slice to mutation")
	}
}

func TestRandom_AlwaysValid(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		if typ := Random(); !Valid(typ) {
			t.Fatalf("Random() returned unknown type %q", typ)
		}
	}
}

func TestAll_CoversProfiles(t *testing.T) {
	t.Parallel()

	all := All()
	if len(all) != len(profiles) {
		t.Fatalf("All() returned %d types, profiles table has %d", len(all), len(profiles))
	}
	for _, typ := range all {
		if !Valid(typ) {
			t.Errorf("All() contains unknown type %q", typ)
		}
	}
}

func TestEvent_WireSchema(t *testing.T) {
	t.Parallel()

	ev := Event{
		ID:        "01HZX0000000000000000000AA",
		Type:      TypeCardiacAbnormal,
		Severity:  SeverityCritical,
		PatientID: "P4521",
		Room:      "312",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"alert_id", "type", "severity", "patient_id", "room", "created_at"} {
		if _, ok := m[key]; !ok {
			t.Errorf("wire schema missing field %q", key)
		}
	}
	if m["type"] != "CARDIAC_ABNORMAL" {
		t.Errorf("type = %v, want CARDIAC_ABNORMAL", m["type"])
	}
}
