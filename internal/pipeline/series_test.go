package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/store/inmemory"
)

func rentSeries(count int) pipeline.SeriesParams {
	return pipeline.SeriesParams{
		Label:             "Marina flat rent 2025",
		AccountID:         "acc-1",
		Payee:             "Landlord LLC",
		Amount:            dec("8500"),
		FirstDueDate:      day(2025, 1, 15),
		IntervalMonths:    1,
		Count:             count,
		FirstChequeNumber: "000100",
	}
}

func TestCreateObligationSeries(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	seed(t, s, []domain.Account{account("acc-1", "50000")}, nil, nil)
	engine := newEngine(s)

	res, err := engine.CreateObligationSeries(ctx, rentSeries(12))
	require.NoError(t, err)
	require.Len(t, res.Obligations, 12)
	assert.Equal(t, 12, res.Series.Count)
	assert.True(t, res.Validation.IsValid)
	assert.Empty(t, res.Validation.Issues)

	first, last := res.Obligations[0], res.Obligations[11]
	assert.Equal(t, "000100", first.ChequeNumber)
	assert.Equal(t, "000111", last.ChequeNumber)
	assert.Equal(t, day(2025, 12, 15), last.DueDate)
	assert.Equal(t, "AED", first.Currency)
	assert.Equal(t, res.Series.ID, first.SeriesID)
	assert.Equal(t, domain.ObligationPending, first.Status)

	stored, err := engine.Ledger().SeriesObligations(ctx, res.Series.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 12)

	v, err := engine.ValidateSeries(ctx, res.Series.ID)
	require.NoError(t, err)
	assert.True(t, v.IsValid)

	next, err := engine.SuggestNext(ctx, res.Series.ID)
	require.NoError(t, err)
	assert.Equal(t, "000112", next.ChequeNumber)
	require.NotNil(t, next.DueDate)
	assert.Equal(t, day(2026, 1, 14), *next.DueDate)
}

func TestCreateObligationSeries_ExplicitItems(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(inmemory.NewStore())

	res, err := engine.CreateObligationSeries(ctx, pipeline.SeriesParams{
		Payee: "School fees",
		Items: []pipeline.SeriesItem{
			{Amount: dec("12000"), DueDate: day(2025, 9, 1), ChequeNumber: "100"},
			{Amount: dec("12000"), DueDate: day(2025, 12, 1), ChequeNumber: "101"},
			{Amount: dec("9000"), DueDate: day(2026, 3, 1), ChequeNumber: "105"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "School fees", res.Series.Label)
	assert.Equal(t, "AED", res.Obligations[0].Currency)
	assert.False(t, res.Validation.HasDateIssues)
	assert.True(t, res.Validation.HasNumberingIssues)
	assert.True(t, res.Validation.IsValid, "gaps are warnings")
}

func TestCreateObligationSeries_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *pipeline.SeriesParams)
		field  string
	}{
		{"no label or payee", func(p *pipeline.SeriesParams) { p.Label, p.Payee = "", "" }, "label"},
		{"zero count", func(p *pipeline.SeriesParams) { p.Count = 0 }, "count"},
		{"too many", func(p *pipeline.SeriesParams) { p.Count = pipeline.MaxSeriesLength + 1 }, "count"},
		{"zero amount", func(p *pipeline.SeriesParams) { p.Amount = dec("0") }, "amount"},
		{"bad first date", func(p *pipeline.SeriesParams) { p.FirstDueDate = day(2025, 2, 31) }, "first_due_date"},
		{"negative interval", func(p *pipeline.SeriesParams) { p.IntervalMonths = -1 }, "interval_months"},
		{"bad cheque number", func(p *pipeline.SeriesParams) { p.FirstChequeNumber = "A-12" }, "first_cheque_number"},
		{"bad item", func(p *pipeline.SeriesParams) {
			p.Items = []pipeline.SeriesItem{{Amount: dec("1"), DueDate: day(2025, 13, 1)}}
		}, "items[0].due_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := inmemory.NewStore()
			seed(t, s, []domain.Account{account("acc-1", "0")}, nil, nil)
			p := rentSeries(3)
			tt.mutate(&p)

			_, err := newEngine(s).CreateObligationSeries(context.Background(), p)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			var fe *domain.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)

			all, err := store.NewLedger(s).AllSeries(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestCreateObligationSeries_UnknownAccount(t *testing.T) {
	_, err := newEngine(inmemory.NewStore()).CreateObligationSeries(context.Background(), rentSeries(3))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateObligationSeries_RollbackCompleteness(t *testing.T) {
	const total = 6
	for n := 1; n < total; n++ {
		base := inmemory.NewStore()
		seed(t, base, []domain.Account{account("acc-1", "0")}, nil, nil)
		fs := &failingStore{Store: base, PutFunc: failOnNth(store.KindObligations, n, assert.AnError)}

		_, err := newEngine(fs).CreateObligationSeries(context.Background(), rentSeries(total))
		require.Error(t, err, "failing obligation %d", n)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "CreateObligationSeries")

		l := store.NewLedger(base)
		obligations, err := l.Obligations(context.Background())
		require.NoError(t, err)
		assert.Empty(t, obligations, "failing obligation %d", n)
		series, err := l.AllSeries(context.Background())
		require.NoError(t, err)
		assert.Empty(t, series, "failing obligation %d", n)
	}
}

func TestCreateObligationSeries_RollbackFailureIsReported(t *testing.T) {
	base := inmemory.NewStore()
	seed(t, base, []domain.Account{account("acc-1", "0")}, nil, nil)
	deleteErr := errors.New("delete refused")
	fs := &failingStore{
		Store:   base,
		PutFunc: failOnNth(store.KindObligations, 3, assert.AnError),
		DeleteFunc: func(context.Context, store.Kind, string) error {
			return deleteErr
		},
	}

	_, err := newEngine(fs).CreateObligationSeries(context.Background(), rentSeries(4))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, err, deleteErr)
	assert.Contains(t, err.Error(), "rollback")
}

func TestCreateObligationSeries_TransactionalStore(t *testing.T) {
	base := inmemory.NewStore()
	seed(t, base, []domain.Account{account("acc-1", "0")}, nil, nil)
	ts := &txFailingStore{Store: base, PutFunc: failOnNth(store.KindObligations, 2, assert.AnError)}

	_, err := newEngine(ts).CreateObligationSeries(context.Background(), rentSeries(4))
	require.ErrorIs(t, err, assert.AnError)

	l := store.NewLedger(base)
	obligations, err := l.Obligations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, obligations)
	series, err := l.AllSeries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestValidateSeries_UnknownSeries(t *testing.T) {
	engine := newEngine(inmemory.NewStore())
	_, err := engine.ValidateSeries(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = engine.SuggestNext(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
