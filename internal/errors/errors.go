// Package errors holds the error taxonomy shared by every coinlake component.
//
// This file provides:
//   - Sentinel errors for all error conditions
//   - Error category checking functions
//   - ExitCode mapping for the command line
//   - Error wrapping utilities
//
// Typed errors that carry extra context (engine.QueryError,
// tablestore.SchemaError, pipeline.StageError, coingecko.APIError) live next
// to the code that produces them and unwrap to the sentinels below.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Process exit codes - returned by cmd/coinlake
// ============================================================================

const (
	ExitOK            = 0
	ExitInternal      = 1
	ExitUsage         = 2
	ExitNotFound      = 3
	ExitInvalidInput  = 4
	ExitQuery         = 5
	ExitSchema        = 6
	ExitTransport     = 7
	ExitConflict      = 8
	ExitUnsupportedIO = 9
)

// ExitName returns a human-readable name for an exit code.
func ExitName(code int) string {
	switch code {
	case ExitOK:
		return "OK"
	case ExitInternal:
		return "Internal"
	case ExitUsage:
		return "Usage"
	case ExitNotFound:
		return "NotFound"
	case ExitInvalidInput:
		return "InvalidInput"
	case ExitQuery:
		return "QueryExecution"
	case ExitSchema:
		return "SchemaIncompatible"
	case ExitTransport:
		return "Transport"
	case ExitConflict:
		return "Conflict"
	case ExitUnsupportedIO:
		return "UnsupportedFormat"
	default:
		return fmt.Sprintf("Exit(%d)", code)
	}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Not found errors
	ErrNotFound       = errors.New("not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrObjectNotFound = errors.New("object not found")
	ErrTableNotFound  = errors.New("table not found")
	ErrVersionMissing = errors.New("table version not found")

	// Validation errors
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidKey     = errors.New("invalid object key")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidMode    = errors.New("invalid write or schema mode")
	ErrInvalidDataset = errors.New("invalid dataset")

	// Format and engine errors
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrQueryExecution    = errors.New("query execution failed")

	// Table store errors
	ErrSchemaIncompatible     = errors.New("schema incompatible")
	ErrConcurrentModification = errors.New("concurrent modification detected (version already committed)")
	ErrCorruptLog             = errors.New("corrupt commit log")

	// Transport errors
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("timeout")

	// Internal errors
	ErrInternal      = errors.New("internal error")
	ErrSessionClosed = errors.New("session is closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBucketNotFound) ||
		errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrVersionMissing)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidDataset)
}

// IsRetriable returns true if the error is potentially retriable.
// Nothing in coinlake retries on its own; callers use this to decide.
// Errors can opt in by implementing Retriable() bool.
func IsRetriable(err error) bool {
	var r interface{ Retriable() bool }
	if errors.As(err, &r) && r.Retriable() {
		return true
	}
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}

// ============================================================================
// Error to exit code mapping
// ============================================================================

// ExitCode maps an error to the process exit code used by cmd/coinlake.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch {
	case IsNotFound(err):
		return ExitNotFound
	case Is(err, ErrUnsupportedFormat):
		return ExitUnsupportedIO
	case IsValidation(err):
		return ExitInvalidInput
	case Is(err, ErrQueryExecution):
		return ExitQuery
	case Is(err, ErrSchemaIncompatible):
		return ExitSchema
	case Is(err, ErrConcurrentModification):
		return ExitConflict
	case Is(err, ErrTransport), Is(err, ErrTimeout):
		return ExitTransport
	default:
		return ExitInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewBucketNotFound reports a missing bucket.
func NewBucketNotFound(bucket string) error {
	return fmt.Errorf("bucket '%s': %w", bucket, ErrBucketNotFound)
}

// NewObjectNotFound reports a missing object inside an existing bucket.
func NewObjectNotFound(bucket, key string) error {
	return fmt.Errorf("object '%s/%s': %w", bucket, key, ErrObjectNotFound)
}

// NewTransport wraps a network failure so callers can match ErrTransport
// while keeping the original cause in the chain.
func NewTransport(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, cause)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns all collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
