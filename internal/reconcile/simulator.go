package reconcile

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// AccountState is the running state of one account during a simulation.
type AccountState struct {
	Balance     decimal.Decimal
	CreditLimit decimal.NullDecimal
}

// StateOf seeds the running state from a stored account.
func StateOf(a domain.Account) AccountState {
	return AccountState{Balance: a.Balance, CreditLimit: a.CreditLimit}
}

// SnapshotBalance derives the balance implied by a snapshot. An available
// balance wins over available credit; available credit needs a known limit.
func SnapshotBalance(s *domain.SnapshotMeta, creditLimit decimal.NullDecimal) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	if s.AvailableBalance.Valid {
		return s.AvailableBalance.Decimal, true
	}
	if s.AvailableCredit.Valid && creditLimit.Valid {
		return creditLimit.Decimal.Sub(s.AvailableCredit.Decimal).Neg(), true
	}
	return decimal.Zero, false
}

// InferStep advances one account by one candidate. When the candidate was
// charged in a foreign currency and carries a balance snapshot, the amount
// actually debited is the movement between the running balance and the
// snapshot, and the candidate is rewritten to that amount in the account
// currency.
func InferStep(state AccountState, c domain.CandidateEvent, account domain.Account, baseCurrency string, tol Tolerances) (AccountState, domain.CandidateEvent) {
	home := account.Currency
	if home == "" {
		home = baseCurrency
	}

	newBalance, hasSnapshot := SnapshotBalance(c.Snapshot, state.CreditLimit)
	foreign := c.OriginalCurrency != "" && !strings.EqualFold(c.OriginalCurrency, home)

	if hasSnapshot && foreign {
		diff := state.Balance.Sub(newBalance).Abs()
		if diff.GreaterThan(tol.Amount) {
			c.Amount = diff
			c.Currency = home
		}
	}

	switch {
	case hasSnapshot:
		state.Balance = newBalance
	case c.Kind == domain.KindExpense:
		state.Balance = state.Balance.Sub(c.Amount)
	case c.Kind == domain.KindIncome:
		state.Balance = state.Balance.Add(c.Amount)
	}

	c.ExchangeRate = exchangeRate(c)
	return state, c
}

func exchangeRate(c domain.CandidateEvent) decimal.NullDecimal {
	if c.OriginalAmount.Valid && !c.OriginalAmount.Decimal.IsZero() && !c.OriginalAmount.Decimal.Equal(c.Amount) {
		return decimal.NewNullDecimal(c.Amount.Div(c.OriginalAmount.Decimal))
	}
	if c.ExchangeRate.Valid {
		return c.ExchangeRate
	}
	return decimal.NewNullDecimal(decimal.NewFromInt(1))
}

// SimulateBalances runs InferStep over chronologically ordered candidates.
// Each account is processed sequentially; distinct accounts run
// concurrently. Candidates for unknown accounts pass through unchanged.
// The final state of every touched account is returned.
func SimulateBalances(ctx context.Context, candidates []domain.CandidateEvent, accounts []domain.Account, baseCurrency string, tol Tolerances) ([]domain.CandidateEvent, map[string]AccountState, error) {
	byID := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	lanes := make(map[string][]int)
	for i, c := range candidates {
		if _, ok := byID[c.AccountID]; ok {
			lanes[c.AccountID] = append(lanes[c.AccountID], i)
		}
	}

	out := slices.Clone(candidates)
	final := make(map[string]AccountState, len(lanes))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for accountID, idx := range lanes {
		account := byID[accountID]
		g.Go(func() error {
			state := StateOf(account)
			for _, i := range idx {
				if err := ctx.Err(); err != nil {
					return err
				}
				state, out[i] = InferStep(state, out[i], account, baseCurrency, tol)
			}
			mu.Lock()
			final[accountID] = state
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, final, nil
}
