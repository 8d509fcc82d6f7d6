package renewal

import (
	"time"

	"github.com/google/uuid"
)

// DefaultIntervalDays is the business default spacing between renewals.
const DefaultIntervalDays = 21

// Spec is the input contract for cycle generation. Import pipelines translate
// external recurrence rules into a RenewalCount + IntervalDays pair before
// calling Generate.
type Spec struct {
	PatientID     string
	FirstDelivery time.Time
	RenewalCount  int
	IntervalDays  int
	CreatedBy     string
}

// Generator produces renewal schedules. It is pure: persistence is the
// caller's responsibility.
type Generator struct {
	adjuster *Adjuster
}

// NewGenerator creates a generator using the given working-day adjuster,
// falling back to the Sunday-closed default when nil.
func NewGenerator(adjuster *Adjuster) *Generator {
	if adjuster == nil {
		adjuster = DefaultAdjuster()
	}
	return &Generator{adjuster: adjuster}
}

// Generate validates spec and computes the full schedule: exactly
// RenewalCount+1 occurrences with indices 0..RenewalCount, in ascending index
// order. Index 0 is R0, the already-completed first delivery; its date is a
// historical fact and never adjusted. Later occurrences land on
// FirstDelivery + i*IntervalDays, shifted off closed days.
func (g *Generator) Generate(spec Spec) (*Cycle, []Occurrence, error) {
	if spec.RenewalCount < 0 {
		return nil, nil, &ValidationError{Field: "renewal_count", Reason: "must be >= 0"}
	}
	if spec.IntervalDays == 0 {
		spec.IntervalDays = DefaultIntervalDays
	}
	if spec.IntervalDays < 1 {
		return nil, nil, &ValidationError{Field: "interval_days", Reason: "must be >= 1"}
	}
	if spec.PatientID == "" {
		return nil, nil, &ValidationError{Field: "patient_id", Reason: "required"}
	}

	first := Day(spec.FirstDelivery)
	cycle := &Cycle{
		ID:            uuid.New().String(),
		PatientID:     spec.PatientID,
		FirstDelivery: first,
		RenewalCount:  spec.RenewalCount,
		IntervalDays:  spec.IntervalDays,
		Status:        CycleActive,
		CreatedBy:     spec.CreatedBy,
		CreatedAt:     time.Now().UTC(),
	}

	occurrences := make([]Occurrence, 0, spec.RenewalCount+1)
	for i := 0; i <= spec.RenewalCount; i++ {
		raw := first.AddDate(0, 0, i*spec.IntervalDays)
		date := raw
		status := StatusDone
		if i > 0 {
			date = g.adjuster.Adjust(raw)
			status = StatusToPrepare
		}
		occurrences = append(occurrences, Occurrence{
			ID:      uuid.New().String(),
			CycleID: cycle.ID,
			Index:   i,
			Date:    date,
			Status:  status,
		})
	}

	return cycle, occurrences, nil
}
