package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the persistence layer.
var (
	// ErrNotFound means no record matched the lookup.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a conditional state transition lost its race: the
	// record was not in the expected source state when the update ran.
	ErrConflict = errors.New("state transition conflict")

	// ErrDuplicateCompleted means the unique completed-per-job constraint
	// rejected a second COMPLETED row for the same (jobID, jobType).
	ErrDuplicateCompleted = errors.New("job already has a completed payment")
)

// ValidationError marks a malformed request: no record is created or mutated.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// BusinessLogicError marks a well-formed request against the wrong state,
// e.g. charging a job that is not completed yet.
type BusinessLogicError struct {
	Msg string
}

func (e *BusinessLogicError) Error() string { return "business rule: " + e.Msg }

func BusinessLogicf(format string, args ...any) *BusinessLogicError {
	return &BusinessLogicError{Msg: fmt.Sprintf(format, args...)}
}

// ProviderError is an adapter-level failure. It never escapes the
// coordinators: they convert it into a {success:false} result plus a state
// transition. Retryable distinguishes transport faults from hard declines.
type ProviderError struct {
	Provider  string
	Code      string
	Msg       string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.Provider, e.Msg, e.Code)
}

// IsRetryable reports whether err is a provider error worth another attempt.
// Unknown errors (timeouts wrapped by net/http, context deadline) count as
// retryable: the caller could not observe the outcome.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
