package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/store/inmemory"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ndec(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func day(y int, m time.Month, d int) civil.Date { return civil.Date{Year: y, Month: m, Day: d} }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newEngine(s store.Store, opts ...pipeline.Option) *pipeline.Engine {
	base := []pipeline.Option{
		pipeline.WithClock(func() time.Time { return fixedNow }),
		pipeline.WithIDGenerator(sequentialIDs()),
		pipeline.WithBaseCurrency("AED"),
	}
	return pipeline.NewEngine(s, append(base, opts...)...)
}

func account(id, balance string) domain.Account {
	return domain.Account{ID: id, Name: "Account " + id, Currency: "AED", Balance: dec(balance)}
}

func seed(t *testing.T, s store.Store, accounts []domain.Account, txs []domain.ConfirmedTransaction, obligations []domain.ScheduledObligation) {
	t.Helper()
	ctx := context.Background()
	l := store.NewLedger(s)
	for _, a := range accounts {
		require.NoError(t, l.PutAccount(ctx, a))
	}
	for _, tx := range txs {
		require.NoError(t, l.PutTransaction(ctx, tx))
	}
	for _, o := range obligations {
		require.NoError(t, l.PutObligation(ctx, o))
	}
}

func expense(amount string, date civil.Date, tod string) domain.CandidateEvent {
	return domain.CandidateEvent{
		Amount:    dec(amount),
		Currency:  "AED",
		Merchant:  "Spinneys",
		Date:      date,
		Time:      tod,
		Kind:      domain.KindExpense,
		AccountID: "acc-1",
	}
}

func cheque(number, amount string, date civil.Date) domain.CandidateEvent {
	c := expense(amount, date, "")
	c.Merchant = "Landlord"
	c.IsCheque = true
	c.ChequeNumber = number
	return c
}

func pendingObligation(id, number, amount string, due civil.Date) domain.ScheduledObligation {
	return domain.ScheduledObligation{
		ID:           id,
		AccountID:    "acc-1",
		ChequeNumber: number,
		Amount:       dec(amount),
		Currency:     "AED",
		DueDate:      due,
		Status:       domain.ObligationPending,
	}
}

// failingStore hides any Transactor implementation of the wrapped store
// and lets tests inject write failures.
type failingStore struct {
	store.Store

	PutFunc    func(ctx context.Context, rec store.Record) error
	DeleteFunc func(ctx context.Context, kind store.Kind, id string) error
}

func (f *failingStore) Put(ctx context.Context, rec store.Record) error {
	if f.PutFunc != nil {
		if err := f.PutFunc(ctx, rec); err != nil {
			return err
		}
	}
	return f.Store.Put(ctx, rec)
}

func (f *failingStore) Delete(ctx context.Context, kind store.Kind, id string) error {
	if f.DeleteFunc != nil {
		if err := f.DeleteFunc(ctx, kind, id); err != nil {
			return err
		}
	}
	return f.Store.Delete(ctx, kind, id)
}

// failOnNth returns a PutFunc failing the nth write of kind.
func failOnNth(kind store.Kind, n int, err error) func(context.Context, store.Record) error {
	seen := 0
	return func(_ context.Context, rec store.Record) error {
		if rec.Kind != kind {
			return nil
		}
		seen++
		if seen == n {
			return err
		}
		return nil
	}
}

// txFailingStore is a transactional store whose transaction-bound writes
// can fail.
type txFailingStore struct {
	*inmemory.Store

	PutFunc func(ctx context.Context, rec store.Record) error
}

func (s *txFailingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		return fn(ctx, &failingStore{Store: tx, PutFunc: s.PutFunc})
	})
}

var _ store.Transactor = (*txFailingStore)(nil)
