package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// Ledger is a typed repository over a Store.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger wraps s.
func NewLedger(s Store) *Ledger {
	return &Ledger{store: s, now: time.Now}
}

// Store returns the underlying store.
func (l *Ledger) Store() Store { return l.store }

// WithStore returns a Ledger over a different store (typically one bound
// to a transaction) sharing the same clock.
func (l *Ledger) WithStore(s Store) *Ledger {
	return &Ledger{store: s, now: l.now}
}

func getAll[T any](ctx context.Context, s Store, kind Kind) ([]T, error) {
	recs, err := s.GetAll(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", kind, err)
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := json.Unmarshal(r.Payload, &v); err != nil {
			return nil, fmt.Errorf("decoding %s %s: %w", kind, r.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func getOne[T any](ctx context.Context, s Store, kind Kind, id string) (*T, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", kind, id, err)
	}
	var v T
	if err := json.Unmarshal(rec.Payload, &v); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", kind, id, err)
	}
	return &v, nil
}

func (l *Ledger) put(ctx context.Context, kind Kind, id string, v any) error {
	if id == "" {
		return domain.Invalid("id", "required for %s", kind)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s %s: %w", kind, id, err)
	}
	if err := l.store.Put(ctx, Record{Kind: kind, ID: id, Payload: payload, UpdatedAt: l.now().UTC()}); err != nil {
		return fmt.Errorf("saving %s %s: %w", kind, id, err)
	}
	return nil
}

func (l *Ledger) Accounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := getAll[domain.Account](ctx, l.store, KindAccounts)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(accounts, func(a, b domain.Account) int { return strings.Compare(a.ID, b.ID) })
	return accounts, nil
}

func (l *Ledger) Account(ctx context.Context, id string) (*domain.Account, error) {
	return getOne[domain.Account](ctx, l.store, KindAccounts, id)
}

func (l *Ledger) PutAccount(ctx context.Context, a domain.Account) error {
	return l.put(ctx, KindAccounts, a.ID, a)
}

// Transactions returns every confirmed transaction in chronological order.
func (l *Ledger) Transactions(ctx context.Context) ([]domain.ConfirmedTransaction, error) {
	txs, err := getAll[domain.ConfirmedTransaction](ctx, l.store, KindTransactions)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(txs, func(a, b domain.ConfirmedTransaction) int {
		if c := domain.CompareChronology(a.CandidateEvent, b.CandidateEvent); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return txs, nil
}

func (l *Ledger) Transaction(ctx context.Context, id string) (*domain.ConfirmedTransaction, error) {
	return getOne[domain.ConfirmedTransaction](ctx, l.store, KindTransactions, id)
}

func (l *Ledger) PutTransaction(ctx context.Context, tx domain.ConfirmedTransaction) error {
	return l.put(ctx, KindTransactions, tx.ID, tx)
}

func (l *Ledger) DeleteTransaction(ctx context.Context, id string) error {
	return l.store.Delete(ctx, KindTransactions, id)
}

func (l *Ledger) Obligations(ctx context.Context) ([]domain.ScheduledObligation, error) {
	return getAll[domain.ScheduledObligation](ctx, l.store, KindObligations)
}

// SeriesObligations returns the obligations of one series.
func (l *Ledger) SeriesObligations(ctx context.Context, seriesID string) ([]domain.ScheduledObligation, error) {
	all, err := l.Obligations(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(o domain.ScheduledObligation) bool { return o.SeriesID != seriesID }), nil
}

func (l *Ledger) Obligation(ctx context.Context, id string) (*domain.ScheduledObligation, error) {
	return getOne[domain.ScheduledObligation](ctx, l.store, KindObligations, id)
}

func (l *Ledger) PutObligation(ctx context.Context, o domain.ScheduledObligation) error {
	return l.put(ctx, KindObligations, o.ID, o)
}

func (l *Ledger) DeleteObligation(ctx context.Context, id string) error {
	return l.store.Delete(ctx, KindObligations, id)
}

func (l *Ledger) Categories(ctx context.Context) ([]domain.Category, error) {
	return getAll[domain.Category](ctx, l.store, KindCategories)
}

func (l *Ledger) PutCategory(ctx context.Context, c domain.Category) error {
	return l.put(ctx, KindCategories, c.ID, c)
}

// DeleteCategory removes a user category. Reserved categories are refused.
func (l *Ledger) DeleteCategory(ctx context.Context, id string) error {
	c, err := getOne[domain.Category](ctx, l.store, KindCategories, id)
	if err != nil {
		return err
	}
	if c.Reserved || c.ID == domain.AdjustmentCategoryID {
		return fmt.Errorf("deleting category %s: %w", id, ErrReservedCategory)
	}
	return l.store.Delete(ctx, KindCategories, id)
}

// EnsureReservedCategories seeds the categories the pipeline relies on.
func (l *Ledger) EnsureReservedCategories(ctx context.Context) error {
	for _, c := range domain.ReservedCategories() {
		_, err := l.store.Get(ctx, KindCategories, c.ID)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNotFound):
			if err := l.PutCategory(ctx, c); err != nil {
				return err
			}
		default:
			return fmt.Errorf("checking category %s: %w", c.ID, err)
		}
	}
	return nil
}

func (l *Ledger) Series(ctx context.Context, id string) (*domain.ObligationSeries, error) {
	return getOne[domain.ObligationSeries](ctx, l.store, KindSeries, id)
}

func (l *Ledger) AllSeries(ctx context.Context) ([]domain.ObligationSeries, error) {
	return getAll[domain.ObligationSeries](ctx, l.store, KindSeries)
}

func (l *Ledger) PutSeries(ctx context.Context, s domain.ObligationSeries) error {
	return l.put(ctx, KindSeries, s.ID, s)
}

func (l *Ledger) DeleteSeries(ctx context.Context, id string) error {
	return l.store.Delete(ctx, KindSeries, id)
}
