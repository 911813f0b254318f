package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// AdjustmentSuggestion is a synthesized entry that reconciles the ledger
// with an observed (or user-entered) balance.
type AdjustmentSuggestion struct {
	AccountID            string          `json:"account_id"`
	TriggerTransactionID string          `json:"trigger_transaction_id,omitempty"`
	Kind                 Kind            `json:"kind"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Date                 civil.Date      `json:"date"`
	Time                 string          `json:"time,omitempty"`
	ExpectedBalance      decimal.Decimal `json:"expected_balance"`
	ObservedBalance      decimal.Decimal `json:"observed_balance"`
	Difference           decimal.Decimal `json:"difference"`
	Explanation          string          `json:"explanation"`
}

// Candidate converts the suggestion into an entry that can be committed
// like any other. The observed balance travels as snapshot metadata.
func (s AdjustmentSuggestion) Candidate() CandidateEvent {
	return CandidateEvent{
		Amount:    s.Amount,
		Currency:  s.Currency,
		Merchant:  AdjustmentCategoryName,
		Date:      s.Date,
		Time:      s.Time,
		Category:  AdjustmentCategoryID,
		Kind:      s.Kind,
		AccountID: s.AccountID,
		Notes:     s.Explanation,
		Snapshot: &SnapshotMeta{
			AvailableBalance: decimal.NewNullDecimal(s.ObservedBalance),
		},
	}
}
