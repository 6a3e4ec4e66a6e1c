package browser

import "fmt"

// Kind classifies why a single lookup or interaction failed.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindNotInteractable Kind = "not-interactable"
	KindNavigation      Kind = "navigation"
)

// LookupError is a transient failure: the page did not reach the expected state in time or
// an element could not be interacted with. Callers are expected to retry.
type LookupError struct {
	Kind    Kind
	Locator Locator
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Kind, e.Locator, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// ConnectionError means no session could be established, it is not retried.
type ConnectionError struct {
	Mode     Mode
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("connect %s browser: %v", e.Mode, e.Err)
	}
	return fmt.Sprintf("connect %s browser at %s: %v", e.Mode, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
