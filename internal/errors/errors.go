package errors

import (
	"errors"
	"fmt"
)

// RagError is the structured error type for aa-rag.
// It provides rich context for error handling, logging, and API responses.
type RagError struct {
	// Code is the unique error code (e.g., "ERR_201_TABLE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Embedder, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *RagError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RagError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RagError.
func (e *RagError) Is(target error) bool {
	if t, ok := target.(*RagError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RagError) WithDetail(key, value string) *RagError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new RagError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RagError {
	return &RagError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RagError from an existing error.
// The error's message becomes the RagError message.
// If err is already a RagError it is returned unchanged so codes survive
// layer boundaries without downgrading.
func Wrap(code string, err error) *RagError {
	if err == nil {
		return nil
	}
	var re *RagError
	if errors.As(err, &re) {
		return re
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RagError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// TableNotFound creates an error for operations against a missing table.
func TableNotFound(table string) *RagError {
	return New(ErrCodeTableNotFound, fmt.Sprintf("table not found: %s", table), nil).
		WithDetail("table", table)
}

// StoreError creates a store write/read error wrapping the backend failure.
func StoreError(message string, cause error) *RagError {
	return New(ErrCodeStoreWrite, message, cause)
}

// EmbedderError creates an embedding backend error.
func EmbedderError(message string, cause error) *RagError {
	return New(ErrCodeEmbedderFailed, message, cause)
}

// Timeout creates a retrieval timeout error.
func Timeout(message string, cause error) *RagError {
	return New(ErrCodeRetrieveTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RagError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RagError {
	return New(ErrCodeInternal, message, cause)
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	var re *RagError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var re *RagError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCode extracts the error code from a RagError.
// Returns empty string if not a RagError.
func GetCode(err error) string {
	var re *RagError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RagError.
// Returns empty string if not a RagError.
func GetCategory(err error) Category {
	var re *RagError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}
