package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	// ErrConfig is fatal: the run aborts before any document is touched.
	ErrConfig = errors.New("configuration error")
	// ErrFallbackService marks failures of the external vision OCR
	// service (timeout, auth, malformed response, rate limit). Scoped to
	// a single document.
	ErrFallbackService = errors.New("fallback service error")
	// ErrRoutingIO marks a failed file copy/rename for one document.
	ErrRoutingIO = errors.New("routing io error")
	// ErrFieldMissing marks an extraction that left required fields
	// unresolved. Recoverable: it triggers the fallback pass or an
	// Incomplete outcome, never an abort.
	ErrFieldMissing = errors.New("required field missing")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
