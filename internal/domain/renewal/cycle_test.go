package renewal

import (
	"errors"
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from    OccurrenceStatus
		to      OccurrenceStatus
		allowed bool
	}{
		{StatusToPrepare, StatusInPreparation, true},
		{StatusToPrepare, StatusCancelled, true},
		{StatusToPrepare, StatusReady, false},
		{StatusToPrepare, StatusDone, false},
		{StatusInPreparation, StatusReady, true},
		{StatusInPreparation, StatusCancelled, true},
		{StatusInPreparation, StatusDone, false},
		{StatusReady, StatusNotified, true},
		{StatusReady, StatusDone, true},
		{StatusReady, StatusCancelled, true},
		{StatusReady, StatusToPrepare, false},
		{StatusNotified, StatusDone, true},
		{StatusNotified, StatusCancelled, true},
		{StatusNotified, StatusReady, false},
		{StatusDone, StatusCancelled, false},
		{StatusDone, StatusToPrepare, false},
		{StatusCancelled, StatusToPrepare, false},
		{StatusCancelled, StatusDone, false},
	}

	for _, tc := range cases {
		occ := Occurrence{Status: tc.from}
		err := occ.Transition(tc.to, time.Now())
		if tc.allowed && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.allowed {
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Errorf("%s -> %s: expected TransitionError, got %v", tc.from, tc.to, err)
			}
		}
	}
}

func TestTransitionRecordsTimestamps(t *testing.T) {
	at := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	occ := Occurrence{Status: StatusToPrepare}

	if err := occ.Transition(StatusInPreparation, at); err != nil {
		t.Fatalf("to IN_PREPARATION: %v", err)
	}
	if occ.PreparedAt == nil || !occ.PreparedAt.Equal(at) {
		t.Error("prepared_at not recorded")
	}

	if err := occ.Transition(StatusReady, at); err != nil {
		t.Fatalf("to READY: %v", err)
	}
	if err := occ.Transition(StatusNotified, at); err != nil {
		t.Fatalf("to NOTIFIED: %v", err)
	}
	if occ.NotifiedAt == nil {
		t.Error("notified_at not recorded")
	}
	if err := occ.Transition(StatusDone, at); err != nil {
		t.Fatalf("to DONE: %v", err)
	}
	if occ.CompletedAt == nil {
		t.Error("completed_at not recorded")
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	occ := Occurrence{Status: StatusToPrepare}
	err := occ.Transition(OccurrenceStatus("SHIPPED"), time.Now())
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func schedule(statuses ...OccurrenceStatus) CycleSchedule {
	s := CycleSchedule{Cycle: Cycle{Status: CycleActive}}
	for i, st := range statuses {
		s.Occurrences = append(s.Occurrences, Occurrence{Index: i, Status: st})
	}
	return s
}

func TestFullyCompleted(t *testing.T) {
	cases := []struct {
		name      string
		schedules []CycleSchedule
		want      bool
	}{
		{"no cycles", nil, false},
		{"all done", []CycleSchedule{schedule(StatusDone, StatusDone)}, true},
		{"pending occurrence", []CycleSchedule{schedule(StatusDone, StatusToPrepare)}, false},
		{"cancelled ignored", []CycleSchedule{schedule(StatusDone, StatusCancelled)}, true},
		{"all cancelled", []CycleSchedule{schedule(StatusCancelled, StatusCancelled)}, false},
		{"one cycle incomplete", []CycleSchedule{
			schedule(StatusDone),
			schedule(StatusDone, StatusReady),
		}, false},
		{"multiple complete", []CycleSchedule{
			schedule(StatusDone),
			schedule(StatusDone, StatusDone, StatusCancelled),
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FullyCompleted(tc.schedules); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
