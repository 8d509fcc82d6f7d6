package renewal

import (
	"testing"
	"time"
)

func TestCheckDuplicateSameDay(t *testing.T) {
	existing := []Cycle{
		{ID: "c1", PatientID: "p1", FirstDelivery: date(2025, 1, 6)},
		{ID: "c2", PatientID: "p1", FirstDelivery: date(2025, 4, 7)},
	}

	result := CheckDuplicate("p1", date(2025, 1, 6), existing)
	if !result.Collides {
		t.Fatal("expected collision")
	}
	if result.ExistingCycleID != "c1" {
		t.Errorf("existing cycle %s, want c1", result.ExistingCycleID)
	}
}

func TestCheckDuplicateIgnoresTimeOfDay(t *testing.T) {
	existing := []Cycle{
		{ID: "c1", PatientID: "p1", FirstDelivery: date(2025, 1, 6)},
	}

	afternoon := time.Date(2025, 1, 6, 15, 45, 0, 0, time.UTC)
	if !CheckDuplicate("p1", afternoon, existing).Collides {
		t.Error("same calendar day should collide regardless of time")
	}
}

func TestCheckDuplicateOtherPatientOrDay(t *testing.T) {
	existing := []Cycle{
		{ID: "c1", PatientID: "p1", FirstDelivery: date(2025, 1, 6)},
	}

	if CheckDuplicate("p2", date(2025, 1, 6), existing).Collides {
		t.Error("different patient should not collide")
	}
	if CheckDuplicate("p1", date(2025, 1, 7), existing).Collides {
		t.Error("different day should not collide")
	}
	if CheckDuplicate("p1", date(2025, 1, 6), nil).Collides {
		t.Error("no existing cycles should not collide")
	}
}
