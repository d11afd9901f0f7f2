package store

import (
	"fmt"
	"net/http"
)

// Error is a persistence error with an HTTP status code.
type Error struct {
	Code    int    // HTTP status code
	Message string // User-facing message
	Err     error  // Underlying error (optional)

	sentinel *Error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel an error was derived from, so
// errors.Is(ErrNotFound.WithCause(err), ErrNotFound) holds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.sentinel != nil && e.sentinel == t)
}

// HTTPCode returns the HTTP status code associated with this error.
func (e *Error) HTTPCode() int { return e.Code }

// WithCause returns a copy of e wrapping an underlying error.
func (e *Error) WithCause(err error) *Error {
	sentinel := e.sentinel
	if sentinel == nil {
		sentinel = e
	}
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Err:      err,
		sentinel: sentinel,
	}
}

// Sentinel errors. Stores return these directly, wrapped with %w, or via WithCause.
var (
	ErrNotFound = &Error{
		Code:    http.StatusNotFound,
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Code:    http.StatusConflict,
		Message: "resource already exists",
	}

	ErrInvalidInput = &Error{
		Code:    http.StatusBadRequest,
		Message: "invalid input",
	}

	// ErrOpenSessionExists is returned by CreateSession when the user already
	// has an open session on the book.
	ErrOpenSessionExists = &Error{
		Code:    http.StatusConflict,
		Message: "open session already exists for user and book",
	}

	// ErrSessionClosed is returned by CloseSession when the session was
	// already closed by another writer.
	ErrSessionClosed = &Error{
		Code:    http.StatusConflict,
		Message: "session already closed",
	}
)
