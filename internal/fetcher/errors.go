package fetcher

import (
	"errors"
	"fmt"
)

// ErrBodyTooLarge is returned when a response body exceeds the configured
// size limit. Oversized bodies are a permanent failure; retrying would
// download the same payload again.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// FetchError describes a failed fetch. Transient distinguishes errors that
// were (or would be) worth retrying from permanent ones; by the time a
// FetchError reaches a caller, internal retries are already exhausted.
type FetchError struct {
	// URL is the requested URL.
	URL string

	// Transient indicates a retryable failure class (timeout, connection
	// reset, 429 or 5xx response). Permanent failures include 4xx responses
	// and malformed URLs.
	Transient bool

	// StatusCode is the HTTP status that caused the failure, or 0 when the
	// request never produced a response.
	StatusCode int

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s failure: status %d", e.URL, kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s failure: %v", e.URL, kind, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err is (or wraps) a transient FetchError.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}
