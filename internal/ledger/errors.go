package ledger

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no API key is available; the app runs
// in a read-only degraded mode and screens surface "service not
// configured" as a first-class state.
var ErrNotConfigured = errors.New("ledger: service not configured")

// TransportError wraps network and timeout failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ledger: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError carries a non-2xx response with its raw body for diagnostics.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("ledger: %s", e.Status)
}

// VerifyError reports that a nominally successful write could not be
// confirmed by re-query. The overall submission is downgraded to failure:
// the user must not believe money was recorded when it wasn't durably
// persisted.
type VerifyError struct {
	ExternalID string
	Attempts   int
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("ledger: write %s not confirmed after %d attempts", e.ExternalID, e.Attempts)
}

// ValidationError reports a draft that fails the stricter submission-time
// checks (guards only gate navigation).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Reason)
}
