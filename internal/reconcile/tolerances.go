// Package reconcile holds the deterministic reconciliation core: ordering,
// duplicate detection, balance inference, cheque matching, series
// validation and discrepancy detection. Nothing here performs I/O.
package reconcile

import (
	"github.com/shopspring/decimal"
)

// Tolerances are the thresholds used across the reconciliation core.
type Tolerances struct {
	// Amount is the absolute amount below which two values are equal.
	Amount decimal.Decimal
	// ChequeMediumRatio is the relative delta (of the scheduled amount) up
	// to which a single cheque match is MEDIUM rather than LOW.
	ChequeMediumRatio decimal.Decimal
	// SeriesDateRatio is the share of the average interval tolerated
	// before a due date is reported as irregular.
	SeriesDateRatio decimal.Decimal
	// SeriesMinToleranceDays is the floor of the date tolerance.
	SeriesMinToleranceDays int
	// SeriesMaxGap is the largest step between consecutive cheque numbers
	// accepted without a warning.
	SeriesMaxGap int
}

// DefaultTolerances returns the standard thresholds.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Amount:                 decimal.RequireFromString("0.01"),
		ChequeMediumRatio:      decimal.RequireFromString("0.05"),
		SeriesDateRatio:        decimal.RequireFromString("0.2"),
		SeriesMinToleranceDays: 3,
		SeriesMaxGap:           3,
	}
}

// withinAmount reports |a-b| < Amount.
func (t Tolerances) withinAmount(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(t.Amount)
}
