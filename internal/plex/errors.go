package plex

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid connection parameters. It is
// returned before any request is made.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return "plex: " + strings.Join(parts, "; ")
}

// NotFoundError reports that a lookup step found no matching library entry.
type NotFoundError struct {
	Step   string
	Detail string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plex: %s: %s", e.Step, e.Detail)
}

// TransportError reports a request that failed or returned a non-200 status.
type TransportError struct {
	Method     string
	URL        string // redacted
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plex: %s %s failed: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("plex: %s %s returned status %d", e.Method, e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RefreshError is returned when no item-level refresh happened. Its message is
// the full diagnostic log so operators can see which step failed.
type RefreshError struct {
	Outcome *Outcome
	Cause   error
}

func (e *RefreshError) Error() string {
	return e.Outcome.DiagnosticLog()
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}
