package shared

import (
	"errors"
	"fmt"
)

// Class buckets domain failures by how callers are expected to react.
type Class string

const (
	// ClassValidation marks input the caller can fix and resubmit.
	ClassValidation Class = "VALIDATION"
	// ClassState marks an operation invoked from an ineligible lifecycle state.
	ClassState Class = "STATE"
	// ClassGate marks a posting or closing gate that blocked the operation.
	ClassGate Class = "GATE"
	// ClassConflict marks a concurrent-update conflict that exhausted retries.
	ClassConflict Class = "CONFLICT"
	// ClassIntegrity marks a broken ledger invariant. Never retried, never
	// auto-corrected; posting into the affected period halts pending audit.
	ClassIntegrity Class = "INTEGRITY"
)

type classifiedError struct {
	class Class
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }

func (e *classifiedError) Unwrap() error { return e.err }

// Classified wraps err with a failure class preserved through wrap chains.
func Classified(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: class, err: err}
}

// Validation builds a classified validation sentinel.
func Validation(msg string) error { return Classified(ClassValidation, errors.New(msg)) }

// State builds a classified state-machine sentinel.
func State(msg string) error { return Classified(ClassState, errors.New(msg)) }

// Gate builds a classified gate sentinel.
func Gate(msg string) error { return Classified(ClassGate, errors.New(msg)) }

// Conflict builds a classified concurrency sentinel.
func Conflict(msg string) error { return Classified(ClassConflict, errors.New(msg)) }

// Integrity builds a classified integrity sentinel.
func Integrity(msg string) error { return Classified(ClassIntegrity, errors.New(msg)) }

// IntegrityErrorf wraps a formatted integrity violation around a sentinel so
// callers can still match it with errors.Is.
func IntegrityErrorf(sentinel error, format string, args ...any) error {
	return Classified(ClassIntegrity, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}

// ClassOf reports the failure class of err, or empty when unclassified.
func ClassOf(err error) Class {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ""
}

// ErrNotFound indicates a record could not be resolved.
var ErrNotFound = errors.New("not found")
