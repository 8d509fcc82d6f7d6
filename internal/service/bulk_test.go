package service

import (
	"context"
	"testing"

	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
)

func TestCancelActiveRenewals(t *testing.T) {
	cycles := newStubCycleStore()
	patients := newStubPatientStore(activePatient("p1"))
	svc := newTestService(cycles, patients, nil)

	result, err := svc.CreateCycle(context.Background(), CreateCycleRequest{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
		RenewalCount:  2,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Progress R1 to READY; R0 is DONE, R2 stays TO_PREPARE.
	r1 := result.Occurrences[1].ID
	svc.Transition(context.Background(), r1, renewal.StatusInPreparation)
	svc.Transition(context.Background(), r1, renewal.StatusReady)

	results := svc.CancelActiveRenewals(context.Background(), []string{"p1"})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("cancel failed: %s", results[0].Reason)
	}
	if results[0].CyclesCancelled != 1 {
		t.Errorf("cycles cancelled %d, want 1", results[0].CyclesCancelled)
	}
	if results[0].OccurrencesCancelled != 2 {
		t.Errorf("occurrences cancelled %d, want 2", results[0].OccurrencesCancelled)
	}

	schedule, _ := svc.GetSchedule(context.Background(), result.Cycle.ID)
	if schedule.Cycle.Status != renewal.CycleCancelled {
		t.Errorf("cycle status %s", schedule.Cycle.Status)
	}
	wantStatuses := []renewal.OccurrenceStatus{
		renewal.StatusDone,      // completed history untouched
		renewal.StatusCancelled, // was READY
		renewal.StatusCancelled, // was TO_PREPARE
	}
	for i, want := range wantStatuses {
		if schedule.Occurrences[i].Status != want {
			t.Errorf("occurrence %d: %s, want %s", i, schedule.Occurrences[i].Status, want)
		}
	}
}

func TestCancelActiveRenewalsIdempotent(t *testing.T) {
	cycles := newStubCycleStore()
	patients := newStubPatientStore(activePatient("p1"))
	svc := newTestService(cycles, patients, nil)

	svc.CreateCycle(context.Background(), CreateCycleRequest{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
		RenewalCount:  1,
	})

	svc.CancelActiveRenewals(context.Background(), []string{"p1"})
	second := svc.CancelActiveRenewals(context.Background(), []string{"p1"})

	if !second[0].Success {
		t.Fatalf("second cancel should succeed: %s", second[0].Reason)
	}
	if second[0].CyclesCancelled != 0 || second[0].OccurrencesCancelled != 0 {
		t.Errorf("second cancel touched rows: %+v", second[0])
	}
}

func TestCancelActiveRenewalsPartialFailure(t *testing.T) {
	cycles := newStubCycleStore()
	patients := newStubPatientStore(activePatient("p1"))
	svc := newTestService(cycles, patients, nil)

	svc.CreateCycle(context.Background(), CreateCycleRequest{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
	})

	results := svc.CancelActiveRenewals(context.Background(), []string{"ghost", "p1"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Success {
		t.Error("unknown patient should fail")
	}
	if !results[1].Success {
		t.Errorf("known patient should succeed: %s", results[1].Reason)
	}
}

func TestDetectFullyCompletedPatients(t *testing.T) {
	p2 := activePatient("p2")
	p2.LastName = "MARTIN"
	cycles := newStubCycleStore()
	patients := newStubPatientStore(activePatient("p1"), p2)
	svc := newTestService(cycles, patients, nil)

	// p1: single zero-renewal cycle, R0 already DONE, fully complete.
	svc.CreateCycle(context.Background(), CreateCycleRequest{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
	})
	// p2: one renewal still pending.
	svc.CreateCycle(context.Background(), CreateCycleRequest{
		PatientID:     "p2",
		FirstDelivery: date(2025, 1, 6),
		RenewalCount:  1,
	})

	completed, err := svc.DetectFullyCompletedPatients(context.Background())
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed patient, got %d", len(completed))
	}
	if completed[0].Patient.ID != "p1" {
		t.Errorf("completed patient %s, want p1", completed[0].Patient.ID)
	}
	if completed[0].CycleCount != 1 {
		t.Errorf("cycle count %d, want 1", completed[0].CycleCount)
	}

	// A fresh cycle disqualifies p1 on the next scan.
	svc.CreateCycle(context.Background(), CreateCycleRequest{
		PatientID:     "p1",
		FirstDelivery: date(2025, 6, 2),
		RenewalCount:  1,
	})
	completed, _ = svc.DetectFullyCompletedPatients(context.Background())
	if len(completed) != 0 {
		t.Errorf("expected no completed patients, got %d", len(completed))
	}
}

func TestAnonymizePatient(t *testing.T) {
	cycles := newStubCycleStore()
	patients := newStubPatientStore(activePatient("p1"))
	svc := newTestService(cycles, patients, nil)

	result, _ := svc.CreateCycle(context.Background(), CreateCycleRequest{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
		RenewalCount:  1,
	})

	if err := svc.AnonymizePatient(context.Background(), "p1"); err != nil {
		t.Fatalf("anonymize failed: %v", err)
	}

	p, _ := patients.Get(context.Background(), "p1")
	if p.LastName != "ANONYMOUS" || p.Active || p.Consent {
		t.Errorf("identity not cleared: %+v", p)
	}

	schedule, err := svc.GetSchedule(context.Background(), result.Cycle.ID)
	if err != nil {
		t.Fatalf("cycle should survive anonymization: %v", err)
	}
	if schedule.Cycle.Status != renewal.CycleCancelled {
		t.Errorf("active cycle should be cancelled, got %s", schedule.Cycle.Status)
	}
}
