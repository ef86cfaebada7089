package issue

import (
	"errors"
	"fmt"
)

// InvariantError reports a violated structural invariant of the select
// network. As with the dispatch queue, these never occur in correct
// operation and abort the run when detected.
type InvariantError struct {
	Code    InvariantCode
	Message string
	Tick    uint64
}

// InvariantCode categorizes invariant violations.
type InvariantCode string

const (
	// ErrCodeReadinessHole indicates a consumer asserted ready on issue
	// port k without asserting ready on every lower port.
	ErrCodeReadinessHole InvariantCode = "READINESS_HOLE"

	// ErrCodeCandidateShape indicates the candidate matrix did not match
	// the configured banks-by-slots geometry.
	ErrCodeCandidateShape InvariantCode = "CANDIDATE_SHAPE"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s (tick=%d)", e.Code, e.Message, e.Tick)
}

// IsInvariant reports whether err is (or wraps) an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// InvariantCodeOf returns the code of a wrapped InvariantError, or "".
func InvariantCodeOf(err error) InvariantCode {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

func newInvariantError(code InvariantCode, tick uint64, format string, args ...any) *InvariantError {
	return &InvariantError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Tick:    tick,
	}
}
