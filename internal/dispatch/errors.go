package dispatch

import (
	"errors"
	"fmt"
)

// InvariantError reports a violated structural invariant of the dispatch
// queue. These conditions can never occur in correct operation; when one
// is detected the current run is unrecoverable and must be aborted.
//
// Redirect flushes and backpressure are ordinary behavior and are never
// reported through this type.
type InvariantError struct {
	// Code identifies the violated invariant.
	Code InvariantCode

	// Message is a human-readable description.
	Message string

	// Tick is the tick on which the violation was detected.
	Tick uint64

	// Details contains additional context (pointer values, masks).
	Details map[string]string
}

// InvariantCode categorizes invariant violations.
type InvariantCode string

const (
	// ErrCodePointerOrder indicates a dequeue pointer moved ahead of the
	// enqueue pointer.
	ErrCodePointerOrder InvariantCode = "POINTER_ORDER"

	// ErrCodeFlushOverflow indicates the flush mask population exceeded
	// the current occupancy.
	ErrCodeFlushOverflow InvariantCode = "FLUSH_OVERFLOW"

	// ErrCodeFlushNotContiguous indicates the flush mask was not a single
	// contiguous arc ending at the enqueue pointer.
	ErrCodeFlushNotContiguous InvariantCode = "FLUSH_NOT_CONTIGUOUS"

	// ErrCodeWriteCollision indicates two admissions targeted the same
	// ring slot in one tick.
	ErrCodeWriteCollision InvariantCode = "WRITE_COLLISION"

	// ErrCodeReadinessHole indicates a consumer asserted ready on port k
	// without asserting ready on every lower port.
	ErrCodeReadinessHole InvariantCode = "READINESS_HOLE"
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

// InvariantCodeOf returns the code of a wrapped InvariantError, or "" if
// err is not one.
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
