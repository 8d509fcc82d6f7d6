// Package patient holds the patient entity and contact normalization rules.
package patient

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced patient does not exist.
var ErrNotFound = errors.New("patient not found")

// Patient is identity plus contact. Phone is stored canonicalized; Consent
// gates notification sending; Active is a soft-delete flag.
type Patient struct {
	ID          string
	LastName    string
	FirstName   string
	Phone       string
	Consent     bool
	Active      bool
	Notes       string
	RecruitedAt time.Time
}

// FullName renders "FirstName LastName" for operator-facing summaries.
func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Anonymize overwrites identity fields in place and deactivates the patient.
// The row is kept so owned cycles stay referentially intact.
func (p *Patient) Anonymize() {
	p.LastName = "ANONYMOUS"
	p.FirstName = "ANONYMOUS"
	p.Phone = "00000000000"
	p.Notes = ""
	p.Consent = false
	p.Active = false
}
