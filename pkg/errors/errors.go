// Package errors defines the error envelope rendered by the local API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable code and HTTP status for API consumers.
// Details carries structured data such as per-field validation failures.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

// Unwrap exposes the internal error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so that derived errors satisfy errors.Is
// against the sentinel they were built from.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy carrying err for logging.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithDetails returns a copy carrying details in the response body.
func (e *AppError) WithDetails(details any) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Details = details
	return &cpy
}

var (
	ErrNotFound           = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest         = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrValidation         = New("VALIDATION_FAILED", "Record failed validation", http.StatusBadRequest)
	ErrConflict           = New("CONFLICT", "Resource already exists", http.StatusConflict)
	ErrUnprocessable      = New("UNPROCESSABLE", "Request could not be completed", http.StatusUnprocessableEntity)
	ErrServiceUnavailable = New("SERVICE_UNAVAILABLE", "Component not configured", http.StatusServiceUnavailable)
	ErrInternalServer     = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

// New builds an application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// Wrap turns any error into a 500 AppError while keeping the original for logging.
func Wrap(err error, message string) *AppError {
	return ErrInternalServer.derive(message).WithInternal(err)
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest reports a malformed request.
func NewBadRequest(message string) *AppError { return ErrBadRequest.derive(message) }

// NewValidation reports a record that failed validation.
func NewValidation(message string) *AppError { return ErrValidation.derive(message) }

// NewConflict reports a uniqueness violation.
func NewConflict(message string) *AppError { return ErrConflict.derive(message) }

// NewNotFound reports a missing resource.
func NewNotFound(message string) *AppError { return ErrNotFound.derive(message) }

func (e *AppError) derive(message string) *AppError {
	return &AppError{Code: e.Code, Message: message, StatusCode: e.StatusCode}
}
