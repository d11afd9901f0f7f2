package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/store"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
	// Retryable marks failures the caller may retry unchanged.
	Retryable bool `json:"retryable,omitempty" doc:"True when the same request may be retried"`
}

func newAPIError(status int, code, message string, details any) *APIError {
	return &APIError{
		status:    status,
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: domainerrors.Code(code).Retryable(),
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		var details map[string]string
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return newAPIError(domainErr.HTTPStatus(), string(domainErr.Code), domainErr.Message, domainErr.Details)
			}

			var storeErr *store.Error
			if errors.As(err, &storeErr) {
				return newAPIError(storeErr.HTTPCode(), statusToCode(storeErr.HTTPCode()), storeErr.Message, nil)
			}

			var detail *huma.ErrorDetail
			if errors.As(err, &detail) {
				if details == nil {
					details = make(map[string]string)
				}
				details[detail.Location] = detail.Message
			}
		}

		// Schema failures on the request are client input errors.
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}

		if details != nil {
			return newAPIError(status, statusToCode(status), message, details)
		}
		return newAPIError(status, statusToCode(status), message, nil)
	}
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(domainerrors.CodeValidation)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeConflict)
	case http.StatusServiceUnavailable:
		return string(domainerrors.CodeUnavailable)
	default:
		return string(domainerrors.CodeInternal)
	}
}
