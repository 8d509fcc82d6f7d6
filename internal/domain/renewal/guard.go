package renewal

import "time"

// CollisionResult is the outcome of the duplicate-cycle check.
type CollisionResult struct {
	Collides        bool
	ExistingCycleID string
}

// CheckDuplicate reports whether the patient already has a cycle anchored on
// the same first-delivery calendar day. Comparison is date-only.
//
// This check is advisory: under concurrent imports two callers can both pass
// it before either writes. The authoritative guard is the repository's
// conditional insert backed by a unique index on (patient_id,
// first_delivery_day); callers treat that insert's duplicate result as
// SKIPPED_DUPLICATE, not a failure.
func CheckDuplicate(patientID string, firstDelivery time.Time, existing []Cycle) CollisionResult {
	day := Day(firstDelivery)
	for _, c := range existing {
		if c.PatientID != patientID {
			continue
		}
		if Day(c.FirstDelivery).Equal(day) {
			return CollisionResult{Collides: true, ExistingCycleID: c.ID}
		}
	}
	return CollisionResult{}
}
