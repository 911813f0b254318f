package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Kind classifies a candidate or confirmed entry.
type Kind string

const (
	KindExpense    Kind = "EXPENSE"
	KindIncome     Kind = "INCOME"
	KindObligation Kind = "OBLIGATION"
)

// ParseKind normalizes a kind label. Unknown labels return false.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindExpense, KindIncome, KindObligation:
		return k, true
	}
	return "", false
}

// SnapshotMeta carries an externally observed account balance embedded in
// the source document (typically a bank SMS or notification).
type SnapshotMeta struct {
	AvailableBalance decimal.NullDecimal `json:"available_balance"`
	AvailableCredit  decimal.NullDecimal `json:"available_credit"`
}

// HasSnapshot reports whether any balance observation is present.
func (s *SnapshotMeta) HasSnapshot() bool {
	return s != nil && (s.AvailableBalance.Valid || s.AvailableCredit.Valid)
}

// CandidateEvent is an extracted, not yet confirmed financial event.
type CandidateEvent struct {
	Amount           decimal.Decimal     `json:"amount"`
	Currency         string              `json:"currency"`
	OriginalAmount   decimal.NullDecimal `json:"original_amount"`
	OriginalCurrency string              `json:"original_currency,omitempty"`
	ExchangeRate     decimal.NullDecimal `json:"exchange_rate"`

	Merchant string     `json:"merchant"`
	Date     civil.Date `json:"date"`
	// Time is "HH:MM" or empty when the source had no time of day.
	Time     string `json:"time,omitempty"`
	Category string `json:"category,omitempty"`
	Kind     Kind   `json:"kind"`

	AccountID  string `json:"account_id,omitempty"`
	IsTransfer bool   `json:"is_transfer,omitempty"`

	IsCheque     bool   `json:"is_cheque,omitempty"`
	ChequeNumber string `json:"cheque_number,omitempty"`

	// GroupID ties together the parts of a split transaction.
	GroupID  string        `json:"group_id,omitempty"`
	Notes    string        `json:"notes,omitempty"`
	Snapshot *SnapshotMeta `json:"snapshot_meta,omitempty"`
}

// ConfirmedTransaction is a committed ledger entry.
type ConfirmedTransaction struct {
	CandidateEvent

	ID           string    `json:"id"`
	ObligationID string    `json:"obligation_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// BalanceBefore is the account balance just before this entry was
	// applied. Discrepancy checks compare against it.
	BalanceBefore decimal.NullDecimal `json:"balance_before"`
}

// IsAdjustment reports whether the entry was synthesized to correct a
// balance discrepancy.
func (c CandidateEvent) IsAdjustment() bool {
	return c.Category == AdjustmentCategoryID
}

// TimeOrMidnight returns the time of day used for ordering.
func (c CandidateEvent) TimeOrMidnight() string {
	if c.Time == "" {
		return "00:00"
	}
	return c.Time
}

// CompareChronology orders two events by (date, time-or-midnight).
func CompareChronology(a, b CandidateEvent) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return strings.Compare(a.TimeOrMidnight(), b.TimeOrMidnight())
}

// ValidTime reports whether s is empty or a well formed "HH:MM".
func ValidTime(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil && len(s) == 5
}
