package domain

import (
	"github.com/shopspring/decimal"
)

// Account is a ledger account with a running balance.
type Account struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	// CreditLimit is set for card accounts; it lets available-credit
	// snapshots be converted to a balance.
	CreditLimit decimal.NullDecimal `json:"credit_limit"`
	// AutoUpdateBalance is nil when never configured, which means enabled.
	AutoUpdateBalance *bool `json:"auto_update_balance,omitempty"`
}

// AutoUpdates reports whether committed entries may move the balance.
func (a Account) AutoUpdates() bool {
	return a.AutoUpdateBalance == nil || *a.AutoUpdateBalance
}

const (
	// AdjustmentCategoryID is the reserved category attached to synthesized
	// balance adjustments. It cannot be deleted.
	AdjustmentCategoryID   = "balance-adjustment"
	AdjustmentCategoryName = "Balance Adjustment"

	// UncategorizedName is used when an extracted category is not known.
	UncategorizedName = "Uncategorized"
)

// Category is a user visible classification for entries.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind,omitempty"`
	Reserved bool   `json:"reserved,omitempty"`
}

// ReservedCategories are seeded into every store.
func ReservedCategories() []Category {
	return []Category{
		{ID: AdjustmentCategoryID, Name: AdjustmentCategoryName, Reserved: true},
	}
}
