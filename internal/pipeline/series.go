package pipeline

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/reconcile"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

// MaxSeriesLength bounds generated series.
const MaxSeriesLength = 120

// SeriesParams describes a batch of obligations issued together, such as
// a book of post-dated rent cheques. Either Items lists every obligation
// explicitly, or Count obligations are generated from the first due date,
// amount and cheque number.
type SeriesParams struct {
	Label     string `json:"label"`
	AccountID string `json:"account_id,omitempty"`
	Payee     string `json:"payee,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Category  string `json:"category,omitempty"`

	Amount            decimal.Decimal `json:"amount"`
	FirstDueDate      civil.Date      `json:"first_due_date"`
	IntervalMonths    int             `json:"interval_months,omitempty"`
	Count             int             `json:"count,omitempty"`
	FirstChequeNumber string          `json:"first_cheque_number,omitempty"`

	Items []SeriesItem `json:"items,omitempty"`
}

// SeriesItem is one explicitly listed obligation of a series.
type SeriesItem struct {
	Amount       decimal.Decimal `json:"amount"`
	DueDate      civil.Date      `json:"due_date"`
	ChequeNumber string          `json:"cheque_number,omitempty"`
}

// SeriesResult is the created series with its validation report.
type SeriesResult struct {
	Series      domain.ObligationSeries      `json:"series"`
	Obligations []domain.ScheduledObligation `json:"obligations"`
	Validation  domain.ValidationResult      `json:"validation"`
}

// plan expands the params into the items to create.
func (p SeriesParams) plan() ([]SeriesItem, error) {
	if strings.TrimSpace(p.Label) == "" && strings.TrimSpace(p.Payee) == "" {
		return nil, domain.Invalid("label", "label or payee is required")
	}

	if len(p.Items) > 0 {
		for i, it := range p.Items {
			if !it.DueDate.IsValid() {
				return nil, domain.Invalid(fmt.Sprintf("items[%d].due_date", i), "invalid date %q", it.DueDate)
			}
			if !it.Amount.IsPositive() {
				return nil, domain.Invalid(fmt.Sprintf("items[%d].amount", i), "must be positive")
			}
		}
		return p.Items, nil
	}

	if p.Count < 1 || p.Count > MaxSeriesLength {
		return nil, domain.Invalid("count", "must be between 1 and %d", MaxSeriesLength)
	}
	if !p.Amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if !p.FirstDueDate.IsValid() {
		return nil, domain.Invalid("first_due_date", "invalid date %q", p.FirstDueDate)
	}
	interval := p.IntervalMonths
	if interval == 0 {
		interval = 1
	}
	if interval < 0 {
		return nil, domain.Invalid("interval_months", "must not be negative")
	}

	var first int64
	numbered := strings.TrimSpace(p.FirstChequeNumber) != ""
	if numbered {
		n, ok := reconcile.ParseChequeNumber(p.FirstChequeNumber)
		if !ok {
			return nil, domain.Invalid("first_cheque_number", "%q is not numeric", p.FirstChequeNumber)
		}
		first = n
	}

	items := make([]SeriesItem, p.Count)
	for i := range items {
		items[i] = SeriesItem{
			Amount:  p.Amount,
			DueDate: reconcile.AddMonths(p.FirstDueDate, i*interval),
		}
		if numbered {
			items[i].ChequeNumber = reconcile.FormatChequeNumber(first+int64(i), strings.TrimSpace(p.FirstChequeNumber))
		}
	}
	return items, nil
}

// CreateObligationSeries creates a series and all of its obligations, or
// nothing. On a store without transactions every record created before
// the failure is deleted again before the error is returned.
func (e *Engine) CreateObligationSeries(ctx context.Context, p SeriesParams) (*SeriesResult, error) {
	items, err := p.plan()
	if err != nil {
		return nil, fmt.Errorf("CreateObligationSeries: %w", err)
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.AccountID != "" {
		account, err := e.ledger.Account(ctx, p.AccountID)
		if err != nil {
			return nil, fmt.Errorf("CreateObligationSeries: %w", err)
		}
		if currency == "" {
			currency = account.Currency
		}
	}
	if currency == "" {
		currency = e.baseCurrency
	}

	now := e.now().UTC()
	label := strings.TrimSpace(p.Label)
	if label == "" {
		label = strings.TrimSpace(p.Payee)
	}
	series := domain.ObligationSeries{
		ID:        e.newID(),
		Label:     label,
		AccountID: p.AccountID,
		Payee:     p.Payee,
		Count:     len(items),
		CreatedAt: now,
	}
	obligations := make([]domain.ScheduledObligation, len(items))
	for i, it := range items {
		obligations[i] = domain.ScheduledObligation{
			ID:           e.newID(),
			SeriesID:     series.ID,
			AccountID:    p.AccountID,
			Payee:        p.Payee,
			Amount:       it.Amount,
			Currency:     currency,
			DueDate:      it.DueDate,
			ChequeNumber: strings.TrimSpace(it.ChequeNumber),
			Category:     p.Category,
			Status:       domain.ObligationPending,
			CreatedAt:    now,
		}
	}

	err = e.atomically(ctx, "create_series", func(ctx context.Context, l *store.Ledger) error {
		if err := l.PutSeries(ctx, series); err != nil {
			return err
		}
		for i, o := range obligations {
			if err := l.PutObligation(ctx, o); err != nil {
				return fmt.Errorf("obligation %d of %d: %w", i+1, len(obligations), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CreateObligationSeries: %w", err)
	}

	result := reconcile.ValidateSeries(obligations, e.tol)
	log := logger.FromContext(ctx)
	log.Info().
		Str("series_id", series.ID).
		Int("count", len(obligations)).
		Bool("valid", result.IsValid).
		Msg("obligation series created")

	return &SeriesResult{
		Series:      series,
		Obligations: reconcile.SortObligations(obligations),
		Validation:  result,
	}, nil
}
