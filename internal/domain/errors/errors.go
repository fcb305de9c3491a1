package errors

import (
	"errors"
	"fmt"
)

// ErrorType partitions failures the way the pipeline treats them:
// validation errors abort startup, data-quality errors are counted and
// skipped, internal errors surface to the caller.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeDataQuality ErrorType = "data_quality"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeExternal    ErrorType = "external"
)

// AppError is a structured application error.
type AppError struct {
	Type      ErrorType      `json:"type"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
	Retryable bool           `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewDataQualityError marks a single bad input item: malformed line,
// unknown SKU, missing catalog entry. Callers log it and continue.
func NewDataQualityError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeDataQuality,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("%s not found", resource),
		Retryable: false,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   message,
		Retryable: true,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeExternal,
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("%s: %s", service, message),
		Retryable: true,
		Details:   map[string]any{"service": service},
	}
}

// Wrap wraps an error with a message using fmt.Errorf with %w.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}
