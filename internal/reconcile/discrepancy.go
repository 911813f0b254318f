package reconcile

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// DetectDiscrepancy compares the balance observed in tx's snapshot with
// the balance the ledger predicts, and suggests an adjustment entry when
// they disagree.
//
// account must carry the balance before tx took effect. Only the latest
// transaction of the account is checked; equal timestamps from other
// transactions do not disqualify tx. Transfers and adjustment entries are
// not checked.
func DetectDiscrepancy(tx domain.ConfirmedTransaction, account domain.Account, all []domain.ConfirmedTransaction, tol Tolerances) *domain.AdjustmentSuggestion {
	if tx.Snapshot == nil || !tx.Snapshot.AvailableBalance.Valid {
		return nil
	}
	if tx.AccountID == "" || tx.AccountID != account.ID || tx.IsTransfer || tx.IsAdjustment() {
		return nil
	}
	for _, other := range all {
		if other.ID == tx.ID || other.AccountID != tx.AccountID {
			continue
		}
		if domain.CompareChronology(other.CandidateEvent, tx.CandidateEvent) > 0 {
			return nil
		}
	}

	expected := account.Balance
	switch tx.Kind {
	case domain.KindExpense:
		expected = expected.Sub(tx.Amount)
	case domain.KindIncome:
		expected = expected.Add(tx.Amount)
	}

	observed := tx.Snapshot.AvailableBalance.Decimal
	diff := observed.Sub(expected)
	if diff.Abs().LessThan(tol.Amount) {
		return nil
	}

	s := synthesize(account, expected, observed, tx.Date, tx.Time)
	s.TriggerTransactionID = tx.ID
	s.Explanation = fmt.Sprintf("%s reported a balance of %s after %q but the ledger predicts %s; recording %s of %s to reconcile",
		accountLabel(account), observed, tx.Merchant, expected, kindVerb(s.Kind), s.Amount)
	return s
}

// ManualAdjustment builds the adjustment that moves account to a
// user-entered target balance. It returns nil when the balance already
// matches.
func ManualAdjustment(account domain.Account, target decimal.Decimal, date civil.Date, tol Tolerances) *domain.AdjustmentSuggestion {
	if target.Sub(account.Balance).Abs().LessThan(tol.Amount) {
		return nil
	}
	s := synthesize(account, account.Balance, target, date, "")
	s.Explanation = fmt.Sprintf("manual balance correction of %s from %s to %s", accountLabel(account), account.Balance, target)
	return s
}

func synthesize(account domain.Account, expected, observed decimal.Decimal, date civil.Date, tod string) *domain.AdjustmentSuggestion {
	diff := observed.Sub(expected)
	kind := domain.KindExpense
	if diff.IsPositive() {
		kind = domain.KindIncome
	}
	return &domain.AdjustmentSuggestion{
		AccountID:       account.ID,
		Kind:            kind,
		Amount:          diff.Abs(),
		Currency:        account.Currency,
		Date:            date,
		Time:            tod,
		ExpectedBalance: expected,
		ObservedBalance: observed,
		Difference:      diff,
	}
}

func accountLabel(a domain.Account) string {
	if a.Name != "" {
		return a.Name
	}
	return "account " + a.ID
}

func kindVerb(k domain.Kind) string {
	if k == domain.KindIncome {
		return "an income"
	}
	return "an expense"
}
