package alert

import (
	"encoding/json"
	"testing"
)

func TestObjectType_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ    ObjectType
		valid  bool
		sensed bool
	}{
		{ObjectCar, true, true},
		{ObjectBike, true, true},
		{ObjectPedestrian, true, true},
		{ObjectSystem, true, false},
		{"truck", false, false},
		{"", false, false},
		{"Car", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			t.Parallel()
			if got := tt.typ.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.typ.Sensed(); got != tt.sensed {
				t.Errorf("Sensed() = %v, want %v", got, tt.sensed)
			}
		})
	}
}

func TestThreatLevel_Valid(t *testing.T) {
	t.Parallel()

	for _, l := range []ThreatLevel{LevelSafe, LevelWarning, LevelDanger} {
		if !l.Valid() {
			t.Errorf("%q.Valid() = false, want true", l)
		}
	}
	for _, l := range []ThreatLevel{"", "safe", "CRITICAL"} {
		if l.Valid() {
			t.Errorf("%q.Valid() = true, want false", l)
		}
	}
}

func TestAllClear(t *testing.T) {
	t.Parallel()

	a := AllClear()
	if a.ThreatLevel != LevelSafe {
		t.Errorf("ThreatLevel = %q, want SAFE", a.ThreatLevel)
	}
	if a.ObjectType != ObjectSystem {
		t.Errorf("ObjectType = %q, want system", a.ObjectType)
	}
	if a.DistanceMeters != 0 || a.TTCSeconds != 0 {
		t.Errorf("distance/ttc = %v/%v, want 0/0", a.DistanceMeters, a.TTCSeconds)
	}
	if a.ThreatExplanation != "All blind spots clear." {
		t.Errorf("ThreatExplanation = %q", a.ThreatExplanation)
	}
	if !a.IsAllClear() {
		t.Error("IsAllClear() = false for AllClear()")
	}
}

func TestIsAllClear_SensedAlert(t *testing.T) {
	t.Parallel()

	a := Alert{ThreatLevel: LevelSafe, ObjectType: ObjectCar}
	if a.IsAllClear() {
		t.Error("IsAllClear() = true for a SAFE car alert")
	}
}

func TestAlert_JSONFieldNames(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Prioritized{PrioritizedAlerts: []Alert{AllClear()}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"prioritizedAlerts":[{"threatLevel":"SAFE","objectType":"system","distanceMeters":0,"ttcSeconds":0,"threatExplanation":"All blind spots clear."}]}`
	if string(b) != want {
		t.Errorf("json = %s\nwant   %s", b, want)
	}
}

func TestReadings_Decode(t *testing.T) {
	t.Parallel()

	body := `{"simulatedData":[{"objectType":"bike","distanceMeters":2,"speedMps":2,"ttcSeconds":1}]}`
	var r Readings
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(r.SimulatedData) != 1 {
		t.Fatalf("len = %d, want 1", len(r.SimulatedData))
	}
	got := r.SimulatedData[0]
	if got.ObjectType != ObjectBike || got.DistanceMeters != 2 || got.SpeedMps != 2 || got.TTCSeconds != 1 {
		t.Errorf("decoded = %+v", got)
	}
}
