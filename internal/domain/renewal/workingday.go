package renewal

import "time"

// Adjuster shifts theoretical dates off closed days. The pharmacy never
// delivers on Sunday; shifting forward trades a one-day delay for never
// delivering early, which could violate prescription timing.
type Adjuster struct {
	closed map[time.Weekday]bool
}

// NewAdjuster builds an adjuster for the given closed weekdays. With no
// arguments it uses the business default: closed on Sunday only.
func NewAdjuster(closed ...time.Weekday) (*Adjuster, error) {
	if len(closed) == 0 {
		closed = []time.Weekday{time.Sunday}
	}
	set := make(map[time.Weekday]bool, len(closed))
	for _, d := range closed {
		set[d] = true
	}
	if len(set) >= 7 {
		return nil, &ValidationError{Field: "closed_days", Reason: "every weekday is closed"}
	}
	return &Adjuster{closed: set}, nil
}

// DefaultAdjuster returns the Sunday-closed adjuster.
func DefaultAdjuster() *Adjuster {
	a, _ := NewAdjuster()
	return a
}

// Adjust normalizes t to midnight UTC and, if it falls on a closed day, moves
// it forward to the next working day. Never shifts backward; open days pass
// through unchanged.
func (a *Adjuster) Adjust(t time.Time) time.Time {
	d := Day(t)
	for a.closed[d.Weekday()] {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
