package store_test

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/store/inmemory"
)

func TestLedgerRoundTripsDomainTypes(t *testing.T) {
	ctx := context.Background()
	l := store.NewLedger(inmemory.NewStore())

	tx := domain.ConfirmedTransaction{
		ID: "tx-1",
		CandidateEvent: domain.CandidateEvent{
			Amount:         decimal.RequireFromString("200.00"),
			Currency:       "AED",
			OriginalAmount: decimal.NewNullDecimal(decimal.RequireFromString("54.45")),
			Date:           civil.Date{Year: 2024, Month: 6, Day: 1},
			Time:           "09:30",
			Kind:           domain.KindExpense,
			AccountID:      "acc-1",
			Snapshot:       &domain.SnapshotMeta{AvailableBalance: decimal.NewNullDecimal(decimal.RequireFromString("2000"))},
		},
	}
	require.NoError(t, l.PutTransaction(ctx, tx))

	got, err := l.Transaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(tx.Amount))
	assert.Equal(t, tx.Date, got.Date)
	assert.True(t, got.OriginalAmount.Valid)
	assert.False(t, got.ExchangeRate.Valid)
	require.NotNil(t, got.Snapshot)
	assert.True(t, got.Snapshot.AvailableBalance.Decimal.Equal(decimal.NewFromInt(2000)))
	assert.False(t, got.Snapshot.AvailableCredit.Valid)

	_, err = l.Transaction(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLedgerOrdersTransactionsChronologically(t *testing.T) {
	ctx := context.Background()
	l := store.NewLedger(inmemory.NewStore())

	for id, d := range map[string]int{"z": 1, "a": 3, "m": 2} {
		require.NoError(t, l.PutTransaction(ctx, domain.ConfirmedTransaction{
			ID:             id,
			CandidateEvent: domain.CandidateEvent{Date: civil.Date{Year: 2024, Month: 1, Day: d}, Kind: domain.KindExpense},
		}))
	}

	txs, err := l.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"z", "m", "a"}, []string{txs[0].ID, txs[1].ID, txs[2].ID})
}

func TestLedgerReservedCategory(t *testing.T) {
	ctx := context.Background()
	l := store.NewLedger(inmemory.NewStore())

	require.NoError(t, l.EnsureReservedCategories(ctx))
	require.NoError(t, l.EnsureReservedCategories(ctx))
	require.NoError(t, l.PutCategory(ctx, domain.Category{ID: "fuel", Name: "Fuel"}))

	cats, err := l.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	assert.ErrorIs(t, l.DeleteCategory(ctx, domain.AdjustmentCategoryID), store.ErrReservedCategory)
	assert.NoError(t, l.DeleteCategory(ctx, "fuel"))
}

func TestLedgerSeriesObligations(t *testing.T) {
	ctx := context.Background()
	l := store.NewLedger(inmemory.NewStore())

	due := civil.Date{Year: 2024, Month: 1, Day: 1}
	require.NoError(t, l.PutObligation(ctx, domain.ScheduledObligation{ID: "1", SeriesID: "s1", DueDate: due}))
	require.NoError(t, l.PutObligation(ctx, domain.ScheduledObligation{ID: "2", SeriesID: "s2", DueDate: due}))
	require.NoError(t, l.PutObligation(ctx, domain.ScheduledObligation{ID: "3", SeriesID: "s1", DueDate: due}))

	got, err := l.SeriesObligations(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.ErrorIs(t, l.PutObligation(ctx, domain.ScheduledObligation{}), domain.ErrInvalidInput)
}
