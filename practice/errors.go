/*
errors.go - Centralized error types for the practice data layer

PURPOSE:
  All error types in one place for consistency and discoverability.
  Matrix generation, aggregation and the stores wrap these errors.

ERROR CATEGORIES:
  1. Source errors - A task, staff, skill or client read failed
  2. Input errors - Malformed month keys, ranges or records
  3. Lookup errors - Referenced record does not exist

PROPAGATION:
  Source errors propagate to the caller as *SourceError. No partial
  matrix or summary is ever returned alongside one. Validation issues
  on a computed matrix are NOT errors; see matrix/validator.go.

SEE ALSO:
  - store.go: Interfaces whose failures are wrapped here
  - matrix/generator.go: Wraps source reads
*/
package practice

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSourceUnavailable marks a data source that could not be reached.
	ErrSourceUnavailable = errors.New("data source unavailable")

	// ErrClientNotFound is returned when a referenced client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrStaffNotFound is returned when a referenced staff member doesn't exist.
	ErrStaffNotFound = errors.New("staff not found")

	// ErrInvalidMonth is returned for month keys that are not YYYY-MM.
	ErrInvalidMonth = errors.New("invalid month key")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrInvalidRecord is returned when a record fails basic checks.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidIndex is returned for month indices that are not integers.
	ErrInvalidIndex = errors.New("invalid month index")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SourceError reports a failed read against one of the data sources.
type SourceError struct {
	Source string // "tasks", "staff", "skills", "clients"
	Op     string // e.g. "recurring_tasks", "availability"
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source: %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// WrapSource wraps err as a SourceError. Context cancellation passes through
// unchanged so callers can tell an abandoned request from a failed one.
func WrapSource(source, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Source: source, Op: op, Err: err}
}

// RecordError describes a record rejected on write.
type RecordError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.ID, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return ErrInvalidRecord
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsSourceError returns true if err came from a data source read.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return IsSourceError(err) || errors.Is(err, ErrSourceUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidMonth) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidIndex)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrStaffNotFound)
}
