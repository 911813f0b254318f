package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/reconcile"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

// DefaultBaseCurrency is used when neither the engine nor the batch names
// a home currency.
const DefaultBaseCurrency = "AED"

// Engine runs the public reconciliation operations against a store.
type Engine struct {
	ledger       *store.Ledger
	tol          reconcile.Tolerances
	baseCurrency string
	autoApply    bool
	now          func() time.Time
	newID        func() string
	metrics      *metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithTolerances(t reconcile.Tolerances) Option {
	return func(e *Engine) { e.tol = t }
}

func WithBaseCurrency(c string) Option {
	return func(e *Engine) {
		if c != "" {
			e.baseCurrency = c
		}
	}
}

// WithAutoApplyAdjustments commits discrepancy suggestions as part of
// Commit instead of returning them for review.
func WithAutoApplyAdjustments(on bool) Option {
	return func(e *Engine) { e.autoApply = on }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an Engine over s.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		ledger:       store.NewLedger(s),
		tol:          reconcile.DefaultTolerances(),
		baseCurrency: DefaultBaseCurrency,
		now:          time.Now,
		newID:        uuid.NewString,
		metrics:      newMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger exposes the typed repository for read endpoints.
func (e *Engine) Ledger() *store.Ledger { return e.ledger }

// Tolerances returns the thresholds in use.
func (e *Engine) Tolerances() reconcile.Tolerances { return e.tol }

// BaseCurrency is the home currency used when a batch names none.
func (e *Engine) BaseCurrency() string { return e.baseCurrency }

// BatchResult is the outcome of ReconcileBatch. Match keys index Confirmed.
type BatchResult struct {
	Confirmed         []domain.CandidateEvent    `json:"confirmed"`
	DuplicatesSkipped int                        `json:"duplicates_skipped"`
	Matches           map[int]domain.MatchResult `json:"matches"`
}

// ReconcileBatch orders, deduplicates and enriches candidates and matches
// cheques to pending obligations. Nothing is written.
func (e *Engine) ReconcileBatch(ctx context.Context, candidates []domain.CandidateEvent, rc ReconcileContext) (*BatchResult, error) {
	log := logger.FromContext(ctx)
	if rc.BaseCurrency == "" {
		rc.BaseCurrency = e.baseCurrency
	}

	state := &ReconcileState{Context: rc, Candidates: slices.Clone(candidates)}
	if err := NewReconcilePipeline(e.ledger, e.tol).Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("ReconcileBatch: %w", err)
	}

	e.metrics.add(ctx, e.metrics.duplicates, state.DuplicatesSkipped)
	for _, m := range state.Matches {
		e.metrics.add(ctx, e.metrics.matches, 1, attribute.String("confidence", m.Confidence.String()))
	}

	log.Info().
		Int("candidates", len(candidates)).
		Int("confirmed", len(state.Candidates)).
		Int("duplicates_skipped", state.DuplicatesSkipped).
		Int("cheque_matches", len(state.Matches)).
		Msg("batch reconciled")

	return &BatchResult{
		Confirmed:         state.Candidates,
		DuplicatesSkipped: state.DuplicatesSkipped,
		Matches:           state.Matches,
	}, nil
}

// CommitResult describes what Commit wrote.
type CommitResult struct {
	Transactions []domain.ConfirmedTransaction `json:"transactions"`
	Obligations  []domain.ScheduledObligation  `json:"obligations,omitempty"`
	Cleared      []domain.ScheduledObligation  `json:"cleared,omitempty"`
	// Suggestions are the discrepancy adjustments found after commit. With
	// auto apply they have already been committed as Adjustments.
	Suggestions []domain.AdjustmentSuggestion `json:"suggestions,omitempty"`
	Adjustments []domain.ConfirmedTransaction `json:"adjustments,omitempty"`
}

// Commit assigns identities to confirmed candidates and writes them, in
// chronological order. OBLIGATION candidates become pending obligations.
// Matches of sufficient confidence (keyed by index into candidates) clear
// their obligation. Account balances are updated and the latest snapshot
// of every touched account is checked for a discrepancy.
func (e *Engine) Commit(ctx context.Context, candidates []domain.CandidateEvent, matches map[int]domain.MatchResult) (*CommitResult, error) {
	res, err := e.commit(ctx, candidates, matches, false)
	if err != nil {
		return nil, fmt.Errorf("Commit: %w", err)
	}
	if e.autoApply {
		for _, s := range res.Suggestions {
			applied, err := e.ApplyAdjustment(ctx, s)
			if err != nil {
				return res, fmt.Errorf("Commit: applying adjustment for %s: %w", s.AccountID, err)
			}
			res.Adjustments = append(res.Adjustments, applied.Transactions...)
		}
	}
	return res, nil
}

// ApplyAdjustment commits a suggested adjustment like any other entry.
func (e *Engine) ApplyAdjustment(ctx context.Context, s domain.AdjustmentSuggestion) (*CommitResult, error) {
	if s.AccountID == "" {
		return nil, fmt.Errorf("ApplyAdjustment: %w", domain.Invalid("account_id", "required"))
	}
	if err := e.ledger.EnsureReservedCategories(ctx); err != nil {
		return nil, fmt.Errorf("ApplyAdjustment: %w", err)
	}
	res, err := e.commit(ctx, []domain.CandidateEvent{s.Candidate()}, nil, false)
	if err != nil {
		return nil, fmt.Errorf("ApplyAdjustment: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", s.AccountID).
		Str("kind", string(s.Kind)).
		Str("amount", s.Amount.String()).
		Msg("adjustment applied")
	return res, nil
}

// AdjustBalance moves an account to a user-entered balance through an
// adjustment entry. It applies even when automatic updates are disabled.
// A result with no transactions means the balance already matched.
func (e *Engine) AdjustBalance(ctx context.Context, accountID string, target decimal.Decimal, date civil.Date) (*CommitResult, error) {
	if !date.IsValid() {
		return nil, fmt.Errorf("AdjustBalance: %w", domain.Invalid("date", "invalid date %q", date))
	}
	account, err := e.ledger.Account(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", err)
	}
	s := reconcile.ManualAdjustment(*account, target, date, e.tol)
	if s == nil {
		return &CommitResult{}, nil
	}
	if err := e.ledger.EnsureReservedCategories(ctx); err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", err)
	}
	res, err := e.commit(ctx, []domain.CandidateEvent{s.Candidate()}, nil, true)
	if err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", err)
	}
	res.Suggestions = []domain.AdjustmentSuggestion{*s}
	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", accountID).
		Str("from", account.Balance.String()).
		Str("to", target.String()).
		Msg("balance adjusted manually")
	return res, nil
}

func (e *Engine) commit(ctx context.Context, candidates []domain.CandidateEvent, matches map[int]domain.MatchResult, force bool) (*CommitResult, error) {
	for i, c := range candidates {
		if err := domain.ValidateCandidate(c); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return domain.CompareChronology(candidates[a], candidates[b])
	})

	res := &CommitResult{}
	err := e.atomically(ctx, "commit", func(ctx context.Context, l *store.Ledger) error {
		accountList, err := l.Accounts(ctx)
		if err != nil {
			return err
		}
		accounts := make(map[string]domain.Account, len(accountList))
		for _, a := range accountList {
			accounts[a.ID] = a
		}
		all, err := l.Transactions(ctx)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		dirty := make(map[string]bool)
		var written []domain.ConfirmedTransaction

		for _, idx := range order {
			c := candidates[idx]

			var account *domain.Account
			if c.AccountID != "" {
				a, ok := accounts[c.AccountID]
				if !ok {
					return fmt.Errorf("candidate %d: %w", idx, domain.Invalid("account_id", "unknown account %q", c.AccountID))
				}
				account = &a
			}

			if c.Kind == domain.KindObligation {
				o := domain.ScheduledObligation{
					ID:           e.newID(),
					AccountID:    c.AccountID,
					Payee:        c.Merchant,
					Amount:       c.Amount,
					Currency:     c.Currency,
					DueDate:      c.Date,
					ChequeNumber: c.ChequeNumber,
					Category:     c.Category,
					Status:       domain.ObligationPending,
					CreatedAt:    now,
				}
				if err := l.PutObligation(ctx, o); err != nil {
					return err
				}
				res.Obligations = append(res.Obligations, o)
				continue
			}

			tx := domain.ConfirmedTransaction{CandidateEvent: c, ID: e.newID(), CreatedAt: now}

			if m, ok := matches[idx]; ok && m.Confidence.Clears() && m.ObligationID != "" {
				cleared, err := clearObligation(ctx, l, m.ObligationID, tx.ID, now)
				if err != nil {
					return fmt.Errorf("candidate %d: %w", idx, err)
				}
				if cleared != nil {
					tx.ObligationID = cleared.ID
					res.Cleared = append(res.Cleared, *cleared)
				}
			}

			if account != nil {
				tx.BalanceBefore = decimal.NewNullDecimal(account.Balance)
				apply := reconcile.ApplyToAccount
				if force {
					apply = reconcile.ForceApply
				}
				if updated, changed := apply(*account, c); changed {
					accounts[updated.ID] = updated
					dirty[updated.ID] = true
				}
			}

			if err := l.PutTransaction(ctx, tx); err != nil {
				return err
			}
			written = append(written, tx)
			all = append(all, tx)
		}

		for id := range dirty {
			if err := l.PutAccount(ctx, accounts[id]); err != nil {
				return err
			}
		}

		for _, tx := range written {
			if !tx.BalanceBefore.Valid {
				continue
			}
			before := accounts[tx.AccountID]
			before.Balance = tx.BalanceBefore.Decimal
			if s := reconcile.DetectDiscrepancy(tx, before, all, e.tol); s != nil {
				res.Suggestions = append(res.Suggestions, *s)
			}
		}
		res.Transactions = written
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.add(ctx, e.metrics.committed, len(res.Transactions))
	e.metrics.add(ctx, e.metrics.cleared, len(res.Cleared))
	e.metrics.add(ctx, e.metrics.suggestions, len(res.Suggestions))

	log := logger.FromContext(ctx)
	for _, o := range res.Cleared {
		log.Info().Str("obligation_id", o.ID).Str("cheque_number", o.ChequeNumber).Str("transaction_id", o.ClearedByTransactionID).Msg("obligation cleared")
	}
	for _, s := range res.Suggestions {
		log.Warn().
			Str("account_id", s.AccountID).
			Str("expected", s.ExpectedBalance.String()).
			Str("observed", s.ObservedBalance.String()).
			Str("difference", s.Difference.String()).
			Msg("balance discrepancy detected")
	}
	log.Info().Int("transactions", len(res.Transactions)).Int("obligations", len(res.Obligations)).Msg("batch committed")
	return res, nil
}

// clearObligation marks a pending obligation as cleared by txID. Stale
// matches against an obligation that is already cleared are ignored; an
// obligation is never cleared twice.
func clearObligation(ctx context.Context, l *store.Ledger, obligationID, txID string, now time.Time) (*domain.ScheduledObligation, error) {
	o, err := l.Obligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.ObligationPending {
		log := logger.FromContext(ctx)
		log.Warn().Str("obligation_id", o.ID).Str("status", string(o.Status)).Msg("match ignored, obligation is not pending")
		return nil, nil
	}
	o.Status = domain.ObligationCleared
	o.ClearedByTransactionID = txID
	o.ClearedAt = &now
	if err := l.PutObligation(ctx, *o); err != nil {
		return nil, err
	}
	return o, nil
}

// DetectDiscrepancy checks a stored transaction against its account. It
// returns nil when the transaction has no snapshot, is not the latest for
// its account, or agrees with the ledger.
func (e *Engine) DetectDiscrepancy(ctx context.Context, transactionID string) (*domain.AdjustmentSuggestion, error) {
	tx, err := e.ledger.Transaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("DetectDiscrepancy: %w", err)
	}
	if tx.AccountID == "" {
		return nil, nil
	}
	account, err := e.ledger.Account(ctx, tx.AccountID)
	if err != nil {
		return nil, fmt.Errorf("DetectDiscrepancy: %w", err)
	}
	// Entries imported without a recorded prior balance are checked
	// against the current one.
	if tx.BalanceBefore.Valid {
		account.Balance = tx.BalanceBefore.Decimal
	}
	all, err := e.ledger.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("DetectDiscrepancy: %w", err)
	}
	return reconcile.DetectDiscrepancy(*tx, *account, all, e.tol), nil
}

// ValidateSeries checks a stored series for numbering and date problems.
func (e *Engine) ValidateSeries(ctx context.Context, seriesID string) (*domain.ValidationResult, error) {
	obligations, err := e.seriesObligations(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("ValidateSeries: %w", err)
	}
	result := reconcile.ValidateSeries(obligations, e.tol)
	log := logger.FromContext(ctx)
	log.Debug().
		Str("series_id", seriesID).
		Bool("valid", result.IsValid).
		Int("issues", len(result.Issues)).
		Msg("series validated")
	return &result, nil
}

// NextInSeries is the suggested continuation of a series. Empty fields
// mean no suggestion could be made.
type NextInSeries struct {
	ChequeNumber string      `json:"cheque_number,omitempty"`
	DueDate      *civil.Date `json:"due_date,omitempty"`
}

// SuggestNext proposes the next cheque number and due date for a series.
func (e *Engine) SuggestNext(ctx context.Context, seriesID string) (*NextInSeries, error) {
	obligations, err := e.seriesObligations(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("SuggestNext: %w", err)
	}
	next := &NextInSeries{}
	if n, ok := reconcile.SuggestNextChequeNumber(obligations); ok {
		next.ChequeNumber = n
	}
	if d, ok := reconcile.SuggestNextDueDate(obligations); ok {
		next.DueDate = &d
	}
	return next, nil
}

func (e *Engine) seriesObligations(ctx context.Context, seriesID string) ([]domain.ScheduledObligation, error) {
	if _, err := e.ledger.Series(ctx, seriesID); err != nil {
		return nil, err
	}
	return e.ledger.SeriesObligations(ctx, seriesID)
}

// atomically runs fn so that either all of its writes persist or none do.
// Stores implementing store.Transactor get a real transaction. Other
// stores are written through a journal that is replayed backwards on
// failure; the original error is returned joined with any rollback
// failures.
func (e *Engine) atomically(ctx context.Context, op string, fn func(ctx context.Context, l *store.Ledger) error) error {
	if tx, ok := e.ledger.Store().(store.Transactor); ok {
		return tx.WithinTx(ctx, func(ctx context.Context, s store.Store) error {
			return fn(ctx, e.ledger.WithStore(s))
		})
	}

	j := newJournal(e.ledger.Store())
	err := fn(ctx, e.ledger.WithStore(j))
	if err == nil {
		return nil
	}

	log := logger.FromContext(ctx)
	n := j.size()
	if n == 0 {
		return err
	}
	log.Warn().Err(err).Str("operation", op).Int("writes", n).
		Msg("store has no transactions, compensating partial writes")
	e.metrics.add(ctx, e.metrics.rollbacks, 1, attribute.String("operation", op))

	if rbErr := j.rollback(context.WithoutCancel(ctx)); rbErr != nil {
		log.Error().Err(rbErr).Str("operation", op).Msg("rollback incomplete")
		return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
	}
	return err
}
