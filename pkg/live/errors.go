package live

import (
	"errors"
	"fmt"
)

// Common errors returned by sessions.
var (
	ErrMissingAPIKey = errors.New("live: missing API key")
	ErrNotConnected  = errors.New("live: session not connected")
	ErrClosed        = errors.New("live: session closed")
)

// TransportError reports a connect, send, or receive failure. Fatal to
// the current session; the caller may start a new one.
type TransportError struct {
	Op  string // "dial", "send", "receive"
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("live: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
