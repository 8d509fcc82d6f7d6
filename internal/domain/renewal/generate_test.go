package renewal

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateStandardCycle(t *testing.T) {
	gen := NewGenerator(nil)

	// 2025-01-06 is a Monday; 21-day steps land on Mondays.
	cycle, occurrences, err := gen.Generate(Spec{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
		RenewalCount:  2,
		IntervalDays:  21,
		CreatedBy:     "tester",
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if cycle.Status != CycleActive {
		t.Errorf("expected ACTIVE cycle, got %s", cycle.Status)
	}
	if len(occurrences) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(occurrences))
	}

	expected := []struct {
		date   time.Time
		status OccurrenceStatus
	}{
		{date(2025, 1, 6), StatusDone},
		{date(2025, 1, 27), StatusToPrepare},
		{date(2025, 2, 17), StatusToPrepare},
	}
	for i, want := range expected {
		got := occurrences[i]
		if got.Index != i {
			t.Errorf("occurrence %d: index %d", i, got.Index)
		}
		if !got.Date.Equal(want.date) {
			t.Errorf("occurrence %d: date %s, want %s", i, got.Date, want.date)
		}
		if got.Status != want.status {
			t.Errorf("occurrence %d: status %s, want %s", i, got.Status, want.status)
		}
		if got.CycleID != cycle.ID {
			t.Errorf("occurrence %d: cycle_id %s", i, got.CycleID)
		}
	}
}

func TestGenerateDefaultInterval(t *testing.T) {
	gen := NewGenerator(nil)

	cycle, occurrences, err := gen.Generate(Spec{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
		RenewalCount:  1,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if cycle.IntervalDays != DefaultIntervalDays {
		t.Errorf("interval %d, want %d", cycle.IntervalDays, DefaultIntervalDays)
	}
	want := date(2025, 1, 27)
	if !occurrences[1].Date.Equal(want) {
		t.Errorf("R1 on %s, want %s", occurrences[1].Date, want)
	}
}

func TestGenerateWeekdayUnchanged(t *testing.T) {
	gen := NewGenerator(nil)

	// 2025-01-01 is a Wednesday; +6 days lands on Tuesday, no shift.
	_, occurrences, err := gen.Generate(Spec{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 1),
		RenewalCount:  1,
		IntervalDays:  6,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	want := date(2025, 1, 7)
	if !occurrences[1].Date.Equal(want) {
		t.Errorf("R1 on %s, want %s", occurrences[1].Date, want)
	}
}

func TestGenerateSundayShiftsToMonday(t *testing.T) {
	gen := NewGenerator(nil)

	// 2025-01-01 + 4 days = Sunday 2025-01-05, delivered Monday the 6th.
	_, occurrences, err := gen.Generate(Spec{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 1),
		RenewalCount:  1,
		IntervalDays:  4,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	want := date(2025, 1, 6)
	if !occurrences[1].Date.Equal(want) {
		t.Errorf("R1 on %s, want %s", occurrences[1].Date, want)
	}
	if occurrences[1].Date.Weekday() == time.Sunday {
		t.Error("renewal scheduled on a Sunday")
	}
}

func TestGenerateSundayFirstDeliveryKept(t *testing.T) {
	gen := NewGenerator(nil)

	// R0 records history and is never adjusted, even on a Sunday.
	sunday := date(2025, 1, 5)
	_, occurrences, err := gen.Generate(Spec{
		PatientID:     "p1",
		FirstDelivery: sunday,
		RenewalCount:  1,
		IntervalDays:  21,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !occurrences[0].Date.Equal(sunday) {
		t.Errorf("R0 moved to %s", occurrences[0].Date)
	}
	// R1 = Sunday + 21d = Sunday 2025-01-26, shifted to Monday.
	want := date(2025, 1, 27)
	if !occurrences[1].Date.Equal(want) {
		t.Errorf("R1 on %s, want %s", occurrences[1].Date, want)
	}
}

func TestGenerateValidation(t *testing.T) {
	gen := NewGenerator(nil)

	cases := []struct {
		name string
		spec Spec
	}{
		{"negative count", Spec{PatientID: "p1", FirstDelivery: date(2025, 1, 6), RenewalCount: -1}},
		{"negative interval", Spec{PatientID: "p1", FirstDelivery: date(2025, 1, 6), IntervalDays: -7}},
		{"missing patient", Spec{FirstDelivery: date(2025, 1, 6), RenewalCount: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := gen.Generate(tc.spec)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestGenerateOccurrenceCount(t *testing.T) {
	gen := NewGenerator(nil)

	for _, count := range []int{0, 1, 5, 12} {
		_, occurrences, err := gen.Generate(Spec{
			PatientID:     "p1",
			FirstDelivery: date(2025, 3, 3),
			RenewalCount:  count,
		})
		if err != nil {
			t.Fatalf("count %d: %v", count, err)
		}
		if len(occurrences) != count+1 {
			t.Errorf("count %d: got %d occurrences", count, len(occurrences))
		}
		for i := 1; i < len(occurrences); i++ {
			if !occurrences[i].Date.After(occurrences[i-1].Date) {
				t.Errorf("count %d: dates not strictly increasing at %d", count, i)
			}
		}
	}
}

func TestGenerateZeroRenewals(t *testing.T) {
	gen := NewGenerator(nil)

	_, occurrences, err := gen.Generate(Spec{
		PatientID:     "p1",
		FirstDelivery: date(2025, 1, 6),
		RenewalCount:  0,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(occurrences) != 1 {
		t.Fatalf("expected the lone R0, got %d occurrences", len(occurrences))
	}
	if occurrences[0].Status != StatusDone {
		t.Errorf("R0 status %s, want DONE", occurrences[0].Status)
	}
}
