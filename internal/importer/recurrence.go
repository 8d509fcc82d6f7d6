// Package importer loads prescription cycles from calendar CSV exports. The
// pharmacy historically tracked renewals as recurring calendar events; this
// pipeline translates those events into cycles.
package importer

import (
	"regexp"
	"strconv"
	"time"

	"github.com/stlaurent/renewal-engine/internal/domain/renewal"
)

// DefaultRenewalCount is assumed when an event recurs with no end date. A
// year of three-week renewals is the longest prescription the pharmacy fills.
const DefaultRenewalCount = 12

// Recurrence is the cycle shape extracted from a calendar event's recurrence
// text.
type Recurrence struct {
	Recurring    bool
	IntervalDays int
	RenewalCount int
}

var (
	weeksRe = regexp.MustCompile(`(?i)(\d+)\s*(?:weeks?|semaines?)`)
	untilRe = regexp.MustCompile(`(?i)(?:until|jusqu'au)\s+(\d{4}-\d{2}-\d{2})`)
)

// ParseRecurrence reads a recurrence description like "every 3 weeks until
// 2025-06-30" or "toutes les 3 semaines". A non-recurring event maps to a
// zero-renewal cycle; a recurring one without an end date gets
// DefaultRenewalCount renewals.
func ParseRecurrence(text string, start time.Time) Recurrence {
	rec := Recurrence{IntervalDays: renewal.DefaultIntervalDays}

	m := weeksRe.FindStringSubmatch(text)
	if m == nil {
		return rec
	}
	weeks, err := strconv.Atoi(m[1])
	if err != nil || weeks < 1 {
		return rec
	}

	rec.Recurring = true
	rec.IntervalDays = weeks * 7
	rec.RenewalCount = DefaultRenewalCount

	if u := untilRe.FindStringSubmatch(text); u != nil {
		until, err := time.Parse("2006-01-02", u[1])
		if err == nil && until.After(start) {
			days := int(until.Sub(renewal.Day(start)).Hours() / 24)
			count := days / rec.IntervalDays
			if count < 0 {
				count = 0
			}
			rec.RenewalCount = count
		}
	}
	return rec
}
