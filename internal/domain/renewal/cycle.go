// Package renewal implements the prescription renewal scheduling engine:
// cycle generation, the occurrence state machine and business-calendar rules.
package renewal

import (
	"time"
)

// OccurrenceStatus represents the lifecycle state of a single renewal occurrence.
type OccurrenceStatus string

const (
	StatusToPrepare     OccurrenceStatus = "TO_PREPARE"
	StatusInPreparation OccurrenceStatus = "IN_PREPARATION"
	StatusReady         OccurrenceStatus = "READY"
	StatusNotified      OccurrenceStatus = "NOTIFIED"
	StatusDone          OccurrenceStatus = "DONE"
	StatusCancelled     OccurrenceStatus = "CANCELLED"
)

// CycleStatus represents the status of a prescription cycle.
type CycleStatus string

const (
	CycleActive    CycleStatus = "ACTIVE"
	CycleCompleted CycleStatus = "COMPLETED"
	CycleCancelled CycleStatus = "CANCELLED"
)

// Cycle is one prescription's renewal plan for a patient, anchored at the
// first-delivery date. A cycle always owns RenewalCount+1 occurrences.
type Cycle struct {
	ID            string
	PatientID     string
	FirstDelivery time.Time
	RenewalCount  int
	IntervalDays  int
	Status        CycleStatus
	CreatedBy     string
	CreatedAt     time.Time
}

// Occurrence is a single scheduled renewal event within a cycle. Index 0 is R0,
// the historical first delivery that seeded the cycle.
type Occurrence struct {
	ID          string
	CycleID     string
	Index       int
	Date        time.Time
	Status      OccurrenceStatus
	PreparedAt  *time.Time
	NotifiedAt  *time.Time
	CompletedAt *time.Time
}

// CycleSchedule pairs a cycle with its occurrences, as loaded from storage.
type CycleSchedule struct {
	Cycle       Cycle
	Occurrences []Occurrence
}

// transitions is the closed set of allowed forward moves. All of them are
// caller-driven; none fire on a timer.
var transitions = map[OccurrenceStatus][]OccurrenceStatus{
	StatusToPrepare:     {StatusInPreparation, StatusCancelled},
	StatusInPreparation: {StatusReady, StatusCancelled},
	StatusReady:         {StatusNotified, StatusDone, StatusCancelled},
	StatusNotified:      {StatusDone, StatusCancelled},
	StatusDone:          {},
	StatusCancelled:     {},
}

// Terminal reports whether no further transition is possible from s.
func (s OccurrenceStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// CanTransitionTo reports whether next is a legal move from s.
func (s OccurrenceStatus) CanTransitionTo(next OccurrenceStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidOccurrenceStatus reports whether s is a known status value.
func ValidOccurrenceStatus(s OccurrenceStatus) bool {
	_, ok := transitions[s]
	return ok
}

// Transition moves the occurrence to next, recording the matching timestamp.
// Occurrences may be progressed out of date order: staff prepare future
// deliveries ahead of time.
func (o *Occurrence) Transition(next OccurrenceStatus, at time.Time) error {
	if !ValidOccurrenceStatus(next) {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(next)}
	}
	if !o.Status.CanTransitionTo(next) {
		return &TransitionError{From: o.Status, To: next}
	}

	at = at.UTC()
	switch next {
	case StatusInPreparation:
		o.PreparedAt = &at
	case StatusNotified:
		o.NotifiedAt = &at
	case StatusDone:
		o.CompletedAt = &at
	}
	o.Status = next
	return nil
}

// Day truncates t to midnight UTC, keeping the calendar day. Theoretical dates
// are date-only values; time-of-day is never significant.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// FullyCompleted reports whether a patient's schedules qualify for archival
// review: at least one cycle, every cycle retains at least one non-cancelled
// occurrence, and every non-cancelled occurrence is DONE. This is a read-time
// derivation; cycle status is never written to COMPLETED automatically.
func FullyCompleted(schedules []CycleSchedule) bool {
	if len(schedules) == 0 {
		return false
	}
	for _, s := range schedules {
		remaining := 0
		for _, occ := range s.Occurrences {
			if occ.Status == StatusCancelled {
				continue
			}
			remaining++
			if occ.Status != StatusDone {
				return false
			}
		}
		if remaining == 0 {
			return false
		}
	}
	return true
}
