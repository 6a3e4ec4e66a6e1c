package portal

import (
	"errors"
	"fmt"

	"dre-etl/internal/browser"
)

// ResolveError aborts the consolidated version state machine, State is where it stopped.
// It is transient: the next attempt restarts the machine from StateStart.
type ResolveError struct {
	State State
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve consolidated version: %s: %v", e.State, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// AcquisitionError is returned once every attempt for a diploma failed. The session has been
// closed by the time the caller sees it.
type AcquisitionError struct {
	Code     string
	Version  string
	Attempts int
	// Kinds holds the failure kind of every attempt, in order.
	Kinds []string
	Last  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf(
		"acquire %q: reached attempts limit (%d), last failure: %v",
		e.Code, e.Attempts, e.Last,
	)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Last
}

// FailureKind names the kind of a failed attempt for reporting.
func FailureKind(err error) string {
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		var lookupErr *browser.LookupError
		if errors.As(resolveErr.Err, &lookupErr) {
			return fmt.Sprintf("resolve.%s.%s", resolveErr.State, lookupErr.Kind)
		}
		return fmt.Sprintf("resolve.%s", resolveErr.State)
	}
	var lookupErr *browser.LookupError
	if errors.As(err, &lookupErr) {
		return string(lookupErr.Kind)
	}
	return "unknown"
}
