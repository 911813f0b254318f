package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ObligationStatus is the lifecycle state of a scheduled obligation.
type ObligationStatus string

const (
	ObligationPending ObligationStatus = "PENDING"
	ObligationCleared ObligationStatus = "CLEARED"
)

// ScheduledObligation is a future-dated expected payment, typically a
// post-dated cheque or an installment.
type ScheduledObligation struct {
	ID           string           `json:"id"`
	SeriesID     string           `json:"series_id,omitempty"`
	AccountID    string           `json:"account_id,omitempty"`
	Payee        string           `json:"payee,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	Currency     string           `json:"currency,omitempty"`
	DueDate      civil.Date       `json:"due_date"`
	ChequeNumber string           `json:"cheque_number,omitempty"`
	Category     string           `json:"category,omitempty"`
	Status       ObligationStatus `json:"status"`

	ClearedByTransactionID string     `json:"cleared_by_transaction_id,omitempty"`
	ClearedAt              *time.Time `json:"cleared_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// ObligationSeries groups obligations created together, such as a book of
// post-dated cheques for a lease.
type ObligationSeries struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	AccountID string    `json:"account_id,omitempty"`
	Payee     string    `json:"payee,omitempty"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}
