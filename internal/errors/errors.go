// Package errors provides standardized domain errors with codes for the readtime API.
//
// Usage:
//
//	// In services - return typed errors
//	if !session.IsOpen {
//	    return errors.SessionAlreadyClosedf("session %s already closed", session.ID)
//	}
//
//	// In handlers and workers - check with errors.Is
//	if errors.Is(err, errors.ErrSessionAlreadyClosed) {
//	    skipped++
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is = errors.Is
	As = errors.As
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeValidation           Code = "VALIDATION"
	CodeConflict             Code = "CONFLICT"
	CodeSessionAlreadyClosed Code = "SESSION_ALREADY_CLOSED"
	CodeInvalidElapsed       Code = "INVALID_ELAPSED"
	CodeUnavailable          Code = "STORE_UNAVAILABLE"
	CodeInternal             Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeSessionAlreadyClosed:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidElapsed:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the same request unchanged.
func (c Code) Retryable() bool {
	return c == CodeUnavailable
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict             = &Error{Code: CodeConflict, Message: "conflict"}
	ErrSessionAlreadyClosed = &Error{Code: CodeSessionAlreadyClosed, Message: "session already closed"}
	ErrInvalidElapsed       = &Error{Code: CodeInvalidElapsed, Message: "invalid elapsed time"}
	ErrUnavailable          = &Error{Code: CodeUnavailable, Message: "storage unavailable"}
	ErrInternal             = &Error{Code: CodeInternal, Message: "internal error"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// SessionAlreadyClosedf creates a session already closed error with formatted message.
func SessionAlreadyClosedf(format string, args ...any) *Error {
	return &Error{Code: CodeSessionAlreadyClosed, Message: fmt.Sprintf(format, args...)}
}

// InvalidElapsedf creates an invalid elapsed error with formatted message.
func InvalidElapsedf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidElapsed, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a storage failure the caller may retry.
func Unavailable(err error, msg string) *Error {
	return &Error{Code: CodeUnavailable, Message: msg, cause: err}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
