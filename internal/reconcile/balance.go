package reconcile

import (
	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// ApplyToAccount returns the account after tx is committed against it, and
// whether the balance changed. Accounts with auto update disabled are
// returned untouched. A balance snapshot wins over a credit snapshot, which
// wins over the amount delta.
func ApplyToAccount(account domain.Account, tx domain.CandidateEvent) (domain.Account, bool) {
	if !account.AutoUpdates() {
		return account, false
	}
	return ForceApply(account, tx)
}

// ForceApply applies tx regardless of the auto update setting. It backs
// manual adjustments.
func ForceApply(account domain.Account, tx domain.CandidateEvent) (domain.Account, bool) {
	before := account.Balance
	if b, ok := SnapshotBalance(tx.Snapshot, account.CreditLimit); ok {
		account.Balance = b
	} else {
		switch tx.Kind {
		case domain.KindExpense:
			account.Balance = account.Balance.Sub(tx.Amount)
		case domain.KindIncome:
			account.Balance = account.Balance.Add(tx.Amount)
		}
	}
	return account, !account.Balance.Equal(before)
}
