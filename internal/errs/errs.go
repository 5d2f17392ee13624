// Package errs defines the shared error taxonomy for the store, codec
// and sync backends. Callers classify failures with errors.Is against
// the sentinel values.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that a referenced collection or item id is absent.
	ErrNotFound = errors.New("not found")
	// ErrAuthentication signals an invalid or denied credential, or a
	// decryption authentication failure.
	ErrAuthentication = errors.New("authentication failed")
	// ErrPermission signals denied storage or filesystem access.
	ErrPermission = errors.New("permission denied")
	// ErrNetwork signals a failed transport or remote backend call.
	ErrNetwork = errors.New("network error")
	// ErrValidation signals a malformed payload or missing configuration.
	ErrValidation = errors.New("validation failed")
)

// Error carries the failing operation and, for sync failures, the backend
// name alongside the underlying cause.
type Error struct {
	// Op is the operation that failed (e.g. "push", "decrypt", "addItem").
	Op string
	// Backend is the sync backend name, empty for local operations.
	Backend string
	// Err is the underlying cause, usually wrapping one of the sentinels.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with operation context.
func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// NewBackend wraps err with operation and backend context.
func NewBackend(backend, op string, err error) *Error {
	return &Error{Op: op, Backend: backend, Err: err}
}
