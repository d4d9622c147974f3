package errors

import (
	"errors"
	"fmt"
)

// SyncError is the structured error type for searchsync.
// It carries what a CLI needs to explain a failure and what a caller
// needs to decide whether to retry.
type SyncError struct {
	// Code is the unique error code (e.g., "ERR_301_INDEX_WRITE_FAILED").
	Code string

	// Message is the human-readable message.
	Message string

	Category Category
	Severity Severity

	// Details are extra key-value context.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable reports whether repeating the operation may succeed.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is matches another SyncError by code, so errors.Is(err, New(code, "", nil))
// tests for a code.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns e.
func (e *SyncError) WithDetail(key, value string) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user hint and returns e.
func (e *SyncError) WithSuggestion(suggestion string) *SyncError {
	e.Suggestion = suggestion
	return e
}

// New creates a SyncError. Category, severity and retryability are
// derived from the code.
func New(code string, message string, cause error) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SyncError whose message is err's message.
// Returns nil for a nil err.
func Wrap(code string, err error) *SyncError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *SyncError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates a file error.
func IOError(message string, cause error) *SyncError {
	return New(ErrCodeFileNotFound, message, cause)
}

// BackendError creates a retryable index write error.
func BackendError(message string, cause error) *SyncError {
	return New(ErrCodeIndexWrite, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *SyncError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SyncError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err, or any SyncError it wraps, is retryable.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal reports whether err wraps a SyncError of fatal severity.
func IsFatal(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code of the first SyncError in err's chain, or "".
func GetCode(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
