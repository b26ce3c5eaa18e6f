package errors

import (
	"errors"
	"fmt"
)

// Encoder error definitions. They are matched with errors.Is by type and code;
// ErrInvalidConfiguration matches any configuration error.
var (
	ErrInvalidConfiguration = NewAppError(ErrorTypeConfiguration, CodeInvalidConfiguration, "invalid configuration")
	ErrInvalidInputSize     = NewAppError(ErrorTypeConfiguration, CodeInvalidInputSize, "input_size must be positive")
	ErrInvalidContextLength = NewAppError(ErrorTypeConfiguration, CodeInvalidContextLength, "context_length must not be negative")
	ErrSequenceTooShort     = NewAppError(ErrorTypeConfiguration, CodeSequenceTooShort, "sequence too short for context length")
	ErrMissingParameter     = NewValidationError(CodeMissingParameter, "required parameter is missing")
	ErrInvalidParameter     = NewValidationError(CodeInvalidParameter, "parameter has an invalid value")
	ErrShapeMismatch        = NewValidationError(CodeShapeMismatch, "tensor shape mismatch")
)

// NewConfigurationError creates a configuration error naming the offending field.
func NewConfigurationError(code, field, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message).WithContext("field", field)
}

// NewSequenceTooShortError reports a sequence that leaves no retained frames.
func NewSequenceTooShortError(seqLen, contextLength int) *AppError {
	return NewConfigurationError(CodeSequenceTooShort, "context_length",
		"sequence too short for context length").
		WithDetails(fmt.Sprintf("seq_len %d must exceed 2*context_length (%d)", seqLen, 2*contextLength)).
		WithContext("seq_len", seqLen)
}

// NewMissingParameterError reports a required key absent from a parameter mapping.
func NewMissingParameterError(key string) *AppError {
	return NewValidationError(CodeMissingParameter, fmt.Sprintf("missing required parameter %q", key)).
		WithContext("parameter", key)
}

// NewInvalidParameterError reports a key present with a value of the wrong kind.
func NewInvalidParameterError(key string, value interface{}) *AppError {
	return NewValidationError(CodeInvalidParameter, fmt.Sprintf("parameter %q has invalid value", key)).
		WithDetails(fmt.Sprintf("got %T(%v)", value, value)).
		WithContext("parameter", key)
}

// NewShapeMismatchError reports a tensor whose shape cannot be processed.
func NewShapeMismatchError(format string, args ...interface{}) *AppError {
	return NewValidationError(CodeShapeMismatch, "tensor shape mismatch").
		WithDetails(fmt.Sprintf(format, args...))
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsMissingParameter reports whether err is a missing-parameter error.
func IsMissingParameter(err error) bool {
	return errors.Is(err, ErrMissingParameter)
}

// IsShapeMismatch reports whether err is a shape mismatch.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}
