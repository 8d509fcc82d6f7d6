package renewal

import (
	"errors"
	"fmt"
)

// ErrDuplicateCycle is returned when a cycle for the same patient and the same
// first-delivery day already exists. Batch callers report it as a skipped item,
// not a hard failure.
var ErrDuplicateCycle = errors.New("duplicate cycle for patient and first-delivery date")

// ErrCycleNotFound is returned when a referenced cycle does not exist.
var ErrCycleNotFound = errors.New("cycle not found")

// ErrOccurrenceNotFound is returned when a referenced occurrence does not exist.
var ErrOccurrenceNotFound = errors.New("occurrence not found")

// ValidationError reports invalid input to the generator or a handler. It is
// always surfaced synchronously; invalid specs never produce partial cycles.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransitionError reports an illegal occurrence state-machine move.
type TransitionError struct {
	From OccurrenceStatus
	To   OccurrenceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
