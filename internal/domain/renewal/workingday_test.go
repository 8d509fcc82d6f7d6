package renewal

import (
	"testing"
	"time"
)

func TestAdjustSunday(t *testing.T) {
	a := DefaultAdjuster()

	sunday := date(2025, 1, 5)
	got := a.Adjust(sunday)
	want := date(2025, 1, 6)
	if !got.Equal(want) {
		t.Errorf("adjusted to %s, want %s", got, want)
	}
}

func TestAdjustOpenDaysUnchanged(t *testing.T) {
	a := DefaultAdjuster()

	for d := 6; d <= 11; d++ { // Monday through Saturday
		day := date(2025, 1, d)
		if got := a.Adjust(day); !got.Equal(day) {
			t.Errorf("%s adjusted to %s", day.Weekday(), got)
		}
	}
}

func TestAdjustNormalizesTimeOfDay(t *testing.T) {
	a := DefaultAdjuster()

	noon := time.Date(2025, 1, 7, 12, 30, 0, 0, time.UTC)
	got := a.Adjust(noon)
	if !got.Equal(date(2025, 1, 7)) {
		t.Errorf("got %s, want midnight of the same day", got)
	}
}

func TestAdjustConsecutiveClosedDays(t *testing.T) {
	a, err := NewAdjuster(time.Saturday, time.Sunday)
	if err != nil {
		t.Fatalf("new adjuster: %v", err)
	}

	saturday := date(2025, 1, 4)
	got := a.Adjust(saturday)
	want := date(2025, 1, 6) // Monday
	if !got.Equal(want) {
		t.Errorf("adjusted to %s, want %s", got, want)
	}
}

func TestAdjusterRejectsFullyClosedWeek(t *testing.T) {
	_, err := NewAdjuster(
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	)
	if err == nil {
		t.Fatal("expected error for a fully closed week")
	}
}
