package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeDevice        ErrorType = "device"
	ErrorTypeInternal      ErrorType = "internal"
)

// Error codes
const (
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeInvalidInputSize     = "INVALID_INPUT_SIZE"
	CodeInvalidContextLength = "INVALID_CONTEXT_LENGTH"
	CodeSequenceTooShort     = "SEQUENCE_TOO_SHORT"
	CodeMissingParameter     = "MISSING_PARAMETER"
	CodeInvalidParameter     = "INVALID_PARAMETER"
	CodeShapeMismatch        = "SHAPE_MISMATCH"
	CodeDeviceFailure        = "DEVICE_FAILURE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target. A configuration target with
// code INVALID_CONFIGURATION matches every configuration error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Type == ErrorTypeConfiguration && t.Code == CodeInvalidConfiguration {
		return e.Type == ErrorTypeConfiguration
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewDeviceError creates an error raised by an accelerated compute device
func NewDeviceError(message string, cause error) *AppError {
	return WrapError(cause, ErrorTypeDevice, CodeDeviceFailure, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// GetErrorType returns the category of err, or ErrorTypeInternal when err
// carries no AppError.
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetContext returns the context value stored under key on the first
// AppError in err's chain.
func GetContext(err error, key string) (interface{}, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Context == nil {
		return nil, false
	}
	v, ok := appErr.Context[key]
	return v, ok
}
