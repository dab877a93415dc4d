/*
errors.go - Error taxonomy of the closing engine

ERROR CATEGORIES:
  1. Input errors     - ErrClientNotFound, ErrInvalidDate (non-retryable)
  2. Race errors      - ErrConcurrencyConflict (retryable: a retry sees the
                        committed period and computes a fresh window)
  3. Store errors     - ErrPersistence (retryable: the close rolled back)
  4. Collaborator errors used by the registry/yield CRUD surfaces

USAGE:
    if errors.Is(err, payout.ErrClientNotFound) { ... }

    var dateErr *payout.InvalidDateError
    if errors.As(err, &dateErr) && dateErr.Source == payout.SourcePeriodEnd { ... }

SEE ALSO:
  - closer.go: wraps store failures into PersistenceError
  - api/errors.go: HTTP status mapping
*/
package payout

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrClientNotFound is returned when the client id does not exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidDate is returned when a registration date or a stored period
	// end cannot be used for date arithmetic.
	ErrInvalidDate = errors.New("invalid date")

	// ErrConcurrencyConflict is returned when two closes for the same client
	// raced and the loser was detected.
	ErrConcurrencyConflict = errors.New("concurrent close for the same client")

	// ErrPersistence is returned when the store failed inside a close. Nothing
	// from that close was committed.
	ErrPersistence = errors.New("persistence failure")

	// ErrRecordNotFound is returned when no yield record exists for a client/date.
	ErrRecordNotFound = errors.New("yield record not found")

	// ErrDuplicateRecord is returned when a client already has a record on that date.
	ErrDuplicateRecord = errors.New("yield record already exists for date")

	// ErrRecordAssigned is returned when changing a record that belongs to a period.
	ErrRecordAssigned = errors.New("yield record belongs to a closed period")

	// ErrInvalidFraction is returned when a roll fraction is outside (0, max].
	ErrInvalidFraction = errors.New("invalid roll fraction")

	// ErrInvalidInput is returned for malformed collaborator input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRegistrationLocked is returned when changing the registration date
	// of a client that already has a closed period.
	ErrRegistrationLocked = errors.New("registration date is fixed once a period is closed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DateSource names the input a date came from.
type DateSource string

const (
	SourceRegistrationDate DateSource = "registration_date"
	SourcePeriodStart      DateSource = "period_start"
	SourcePeriodEnd        DateSource = "period_end"
	SourceRecordDate       DateSource = "record_date"
)

// InvalidDateError reports which date input could not be used.
type InvalidDateError struct {
	Source   DateSource
	ClientID ClientID
	Value    string
	Err      error
}

func (e *InvalidDateError) Error() string {
	msg := fmt.Sprintf("invalid %s %q for client %s", e.Source, e.Value, e.ClientID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidDateError) Unwrap() error { return ErrInvalidDate }

// FromStoredData is true when the bad date came from persisted state rather
// than from client registration input.
func (e *InvalidDateError) FromStoredData() bool { return e.Source != SourceRegistrationDate }

// PersistenceError wraps a store failure that happened inside a close.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if re-issuing the same close may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	var dateErr *InvalidDateError
	if errors.As(err, &dateErr) {
		return !dateErr.FromStoredData()
	}
	return errors.Is(err, ErrInvalidFraction) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicateRecord) ||
		errors.Is(err, ErrRecordAssigned) ||
		errors.Is(err, ErrRegistrationLocked)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) || errors.Is(err, ErrRecordNotFound)
}

// classified reports whether err already carries one of the engine's
// categories and must reach the caller unchanged.
func classified(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrInvalidFraction) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrRegistrationLocked)
}

// persistenceErr wraps unclassified store errors; classified ones pass through.
func persistenceErr(op string, err error) error {
	if err == nil || classified(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
