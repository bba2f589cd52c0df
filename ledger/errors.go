/*
errors.go - Error taxonomy for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - missing field, unparsable date/year, negative value
  2. Schedule errors - maturity before start for a scheduled instrument
  3. Store errors - persistence failures, surfaced verbatim, never retried

USAGE:
  Callers branch on kind, not on text:

    var verr *ledger.ValidationError
    if errors.As(err, &verr) {
        // verr.Field names the offending input
    }

SEE ALSO:
  - expand.go, lifecycle.go: Produce validation and schedule errors
  - store/sqlite/sqlite.go: Wraps driver failures in StoreError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the kind of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidSchedule is returned when a schedule would run backwards.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInstrumentNotFound is returned when no rows exist for an instrument id.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrStore is the kind of every StoreError.
	ErrStore = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the field or rule that failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ScheduleError reports a maturity date that precedes the schedule start.
type ScheduleError struct {
	AccountType AccountType
	StartYear   int
	StartMonth  int // 1-12
	Maturity    string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("%s maturity %s precedes start %s %d",
		e.AccountType, e.Maturity, MonthNames[e.StartMonth-1], e.StartYear)
}

func (e *ScheduleError) Unwrap() error { return ErrInvalidSchedule }

// StoreError wraps an underlying persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// WrapStore returns nil for nil and passes existing ledger errors through.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) || errors.Is(err, ErrValidation) || errors.Is(err, ErrInstrumentNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidSchedule)
}

// IsNotFound returns true if the error indicates a missing instrument.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstrumentNotFound)
}
