package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every boundary validation failure.
var ErrInvalidInput = errors.New("invalid input")

// FieldError reports a malformed input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a FieldError.
func Invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateCandidate rejects candidates that the reconciliation core cannot
// process. Errors name the offending field.
func ValidateCandidate(c CandidateEvent) error {
	if !c.Date.IsValid() {
		return Invalid("date", "missing or not a calendar date")
	}
	if !ValidTime(c.Time) {
		return Invalid("time", "%q is not HH:MM", c.Time)
	}
	if _, ok := ParseKind(string(c.Kind)); !ok {
		return Invalid("kind", "%q is not one of EXPENSE, INCOME, OBLIGATION", c.Kind)
	}
	if c.Amount.IsNegative() {
		return Invalid("amount", "must not be negative, got %s", c.Amount)
	}
	if c.OriginalAmount.Valid && c.OriginalAmount.Decimal.IsNegative() {
		return Invalid("original_amount", "must not be negative, got %s", c.OriginalAmount.Decimal)
	}
	if c.OriginalAmount.Valid && c.OriginalCurrency == "" {
		return Invalid("original_currency", "required when original_amount is set")
	}
	if c.Snapshot != nil && c.Snapshot.AvailableCredit.Valid && c.Snapshot.AvailableCredit.Decimal.IsNegative() {
		return Invalid("snapshot_meta.available_credit", "must not be negative")
	}
	return nil
}
