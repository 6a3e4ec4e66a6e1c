package diploma

import "fmt"

// ValidationError is returned for malformed diploma codes or version dates. It is never
// worth retrying: the same input will always fail the same way.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	// Suggestion is the closest known diploma type, only set when the type keyword was not recognized.
	Suggestion string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid diploma %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

func invalidCode(value, reason string) *ValidationError {
	return &ValidationError{Field: "code", Value: value, Reason: reason}
}
