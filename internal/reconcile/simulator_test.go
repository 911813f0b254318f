package reconcile_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/reconcile"
)

func TestInferStepForeignCurrencySnapshot(t *testing.T) {
	tol := reconcile.DefaultTolerances()
	account := domain.Account{ID: "acc-1", Currency: "AED", Balance: dec("2200")}

	c := expense("150", day(2024, 6, 1), "12:00")
	c.AccountID = "acc-1"
	c.Currency = "USD"
	c.OriginalCurrency = "USD"
	c.Snapshot = &domain.SnapshotMeta{AvailableBalance: ndec("2000")}

	state, out := reconcile.InferStep(reconcile.StateOf(account), c, account, "AED", tol)

	assert.True(t, out.Amount.Equal(dec("200")), "amount = %s", out.Amount)
	assert.Equal(t, "AED", out.Currency)
	assert.False(t, out.OriginalAmount.Valid, "original amount is not invented from the face amount")
	require.True(t, out.ExchangeRate.Valid)
	assert.True(t, out.ExchangeRate.Decimal.Equal(dec("1")), "rate = %s", out.ExchangeRate.Decimal)
	assert.True(t, state.Balance.Equal(dec("2000")))

	c.OriginalAmount = ndec("150")
	_, out = reconcile.InferStep(reconcile.StateOf(account), c, account, "AED", tol)
	assert.True(t, out.OriginalAmount.Decimal.Equal(dec("150")))
	assert.Equal(t, "1.33", out.ExchangeRate.Decimal.StringFixed(2))
}

func TestInferStep(t *testing.T) {
	tol := reconcile.DefaultTolerances()
	card := domain.Account{ID: "card", Currency: "AED", Balance: dec("-500"), CreditLimit: ndec("5000")}

	tests := []struct {
		name        string
		account     domain.Account
		candidate   func() domain.CandidateEvent
		wantAmount  string
		wantBalance string
	}{
		{
			name:    "credit snapshot with limit",
			account: card,
			candidate: func() domain.CandidateEvent {
				c := expense("75", day(2024, 6, 1), "")
				c.OriginalCurrency = "EUR"
				c.Snapshot = &domain.SnapshotMeta{AvailableCredit: ndec("4200")}
				return c
			},
			wantAmount:  "300",
			wantBalance: "-800",
		},
		{
			name:    "balance snapshot wins over credit",
			account: card,
			candidate: func() domain.CandidateEvent {
				c := expense("75", day(2024, 6, 1), "")
				c.OriginalCurrency = "EUR"
				c.Snapshot = &domain.SnapshotMeta{AvailableBalance: ndec("-600"), AvailableCredit: ndec("1")}
				return c
			},
			wantAmount:  "100",
			wantBalance: "-600",
		},
		{
			name:    "credit snapshot without limit is ignored",
			account: domain.Account{ID: "cur", Currency: "AED", Balance: dec("100")},
			candidate: func() domain.CandidateEvent {
				c := expense("30", day(2024, 6, 1), "")
				c.OriginalCurrency = "EUR"
				c.Snapshot = &domain.SnapshotMeta{AvailableCredit: ndec("10")}
				return c
			},
			wantAmount:  "30",
			wantBalance: "70",
		},
		{
			name:    "home currency keeps amount but takes snapshot",
			account: domain.Account{ID: "cur", Currency: "AED", Balance: dec("1000")},
			candidate: func() domain.CandidateEvent {
				c := expense("30", day(2024, 6, 1), "")
				c.OriginalCurrency = "aed"
				c.Snapshot = &domain.SnapshotMeta{AvailableBalance: ndec("900")}
				return c
			},
			wantAmount:  "30",
			wantBalance: "900",
		},
		{
			name:    "difference within tolerance keeps amount",
			account: domain.Account{ID: "cur", Currency: "AED", Balance: dec("1000")},
			candidate: func() domain.CandidateEvent {
				c := expense("3", day(2024, 6, 1), "")
				c.OriginalCurrency = "USD"
				c.Snapshot = &domain.SnapshotMeta{AvailableBalance: ndec("999.995")}
				return c
			},
			wantAmount:  "3",
			wantBalance: "999.995",
		},
		{
			name:    "income without snapshot adds",
			account: domain.Account{ID: "cur", Currency: "AED", Balance: dec("10")},
			candidate: func() domain.CandidateEvent {
				return income("5.5", day(2024, 6, 1), "")
			},
			wantAmount:  "5.5",
			wantBalance: "15.5",
		},
		{
			name:    "obligation leaves balance",
			account: domain.Account{ID: "cur", Currency: "AED", Balance: dec("10")},
			candidate: func() domain.CandidateEvent {
				c := expense("5", day(2024, 6, 1), "")
				c.Kind = domain.KindObligation
				return c
			},
			wantAmount:  "5",
			wantBalance: "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.candidate()
			c.AccountID = tt.account.ID
			state, out := reconcile.InferStep(reconcile.StateOf(tt.account), c, tt.account, "AED", tol)
			assert.True(t, out.Amount.Equal(dec(tt.wantAmount)), "amount = %s", out.Amount)
			assert.True(t, state.Balance.Equal(dec(tt.wantBalance)), "balance = %s", state.Balance)
		})
	}
}

func TestInferStepExchangeRateDefaultsToOne(t *testing.T) {
	account := domain.Account{ID: "a", Currency: "AED"}
	c := expense("12", day(2024, 1, 1), "")
	_, out := reconcile.InferStep(reconcile.StateOf(account), c, account, "AED", reconcile.DefaultTolerances())
	require.True(t, out.ExchangeRate.Valid)
	assert.True(t, out.ExchangeRate.Decimal.Equal(decimal.NewFromInt(1)))
}

func TestSimulateBalancesConservesAmountsWithoutSnapshots(t *testing.T) {
	accounts := []domain.Account{
		{ID: "a", Currency: "AED", Balance: dec("1000")},
		{ID: "b", Currency: "USD", Balance: dec("50")},
	}
	var batch []domain.CandidateEvent
	for i := 0; i < 40; i++ {
		c := expense(fmt.Sprintf("%d.%02d", i+1, i), day(2024, 1, 1+i%28), "")
		if i%3 == 0 {
			c.Kind = domain.KindIncome
		}
		c.AccountID = accounts[i%2].ID
		c.OriginalCurrency = "EUR"
		batch = append(batch, c)
	}
	batch = append(batch, expense("1", day(2024, 1, 1), ""))

	out, final, err := reconcile.SimulateBalances(context.Background(), batch, accounts, "AED", reconcile.DefaultTolerances())
	require.NoError(t, err)
	require.Len(t, out, len(batch))

	want := map[string]decimal.Decimal{"a": dec("1000"), "b": dec("50")}
	for i := range batch {
		assert.True(t, out[i].Amount.Equal(batch[i].Amount), "candidate %d changed", i)
		if batch[i].AccountID == "" {
			continue
		}
		if batch[i].Kind == domain.KindIncome {
			want[batch[i].AccountID] = want[batch[i].AccountID].Add(batch[i].Amount)
		} else {
			want[batch[i].AccountID] = want[batch[i].AccountID].Sub(batch[i].Amount)
		}
	}
	for id, w := range want {
		assert.True(t, final[id].Balance.Equal(w), "account %s: got %s want %s", id, final[id].Balance, w)
	}
}

func TestSimulateBalancesSequencesSnapshotsPerAccount(t *testing.T) {
	accounts := []domain.Account{{ID: "a", Currency: "AED", Balance: dec("2200")}}

	first := expense("150", day(2024, 6, 1), "09:00")
	first.AccountID = "a"
	first.OriginalCurrency = "USD"
	first.Snapshot = &domain.SnapshotMeta{AvailableBalance: ndec("2000")}

	second := expense("20", day(2024, 6, 1), "10:00")
	second.AccountID = "a"
	second.OriginalCurrency = "USD"
	second.Snapshot = &domain.SnapshotMeta{AvailableBalance: ndec("1925")}

	out, final, err := reconcile.SimulateBalances(context.Background(), []domain.CandidateEvent{first, second}, accounts, "AED", reconcile.DefaultTolerances())
	require.NoError(t, err)
	assert.True(t, out[0].Amount.Equal(dec("200")))
	assert.True(t, out[1].Amount.Equal(dec("75")))
	assert.True(t, final["a"].Balance.Equal(dec("1925")))
}

func TestSimulateBalancesHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := expense("1", day(2024, 1, 1), "")
	c.AccountID = "a"
	_, _, err := reconcile.SimulateBalances(ctx, []domain.CandidateEvent{c}, []domain.Account{{ID: "a"}}, "AED", reconcile.DefaultTolerances())
	assert.ErrorIs(t, err, context.Canceled)
}
