package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/reconcile"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

// ReconcileContext carries the caller's defaults for a batch.
type ReconcileContext struct {
	// BaseCurrency is the home currency. Empty uses the engine default.
	BaseCurrency string `json:"base_currency,omitempty"`
	// AccountID is assigned to candidates that do not name an account.
	AccountID string `json:"account_id,omitempty"`
}

// ReconcileState holds the shared state across all pipeline steps.
type ReconcileState struct {
	Context ReconcileContext

	// Loaded by LoadLedgerStep.
	Accounts    []domain.Account
	Existing    []domain.ConfirmedTransaction
	Obligations []domain.ScheduledObligation

	// Candidates is the working set; each step narrows or rewrites it.
	Candidates        []domain.CandidateEvent
	DuplicatesSkipped int
	FinalStates       map[string]reconcile.AccountState
	Matches           map[int]domain.MatchResult
}

// Step 1: ValidateStep rejects malformed candidates before anything else
// looks at them.
type ValidateStep struct{}

func (s *ValidateStep) Execute(ctx context.Context, state *ReconcileState) error {
	for i, c := range state.Candidates {
		if err := domain.ValidateCandidate(c); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return nil
}

// Step 2: LoadLedgerStep reads the current accounts, transactions and
// obligations.
type LoadLedgerStep struct {
	Ledger *store.Ledger
}

func (s *LoadLedgerStep) Execute(ctx context.Context, state *ReconcileState) error {
	var err error
	if state.Accounts, err = s.Ledger.Accounts(ctx); err != nil {
		return err
	}
	if state.Existing, err = s.Ledger.Transactions(ctx); err != nil {
		return err
	}
	if state.Obligations, err = s.Ledger.Obligations(ctx); err != nil {
		return err
	}
	return nil
}

// Step 3: NormalizeStep fills defaults, binds known accounts and
// sorts the batch chronologically.
type NormalizeStep struct{}

func (s *NormalizeStep) Execute(ctx context.Context, state *ReconcileState) error {
	log := logger.FromContext(ctx)
	accounts := make(map[string]domain.Account, len(state.Accounts))
	for _, a := range state.Accounts {
		accounts[a.ID] = a
	}

	out := make([]domain.CandidateEvent, len(state.Candidates))
	for i, c := range state.Candidates {
		c.Merchant = strings.TrimSpace(c.Merchant)
		c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
		c.OriginalCurrency = strings.ToUpper(strings.TrimSpace(c.OriginalCurrency))
		c.ChequeNumber = strings.TrimSpace(c.ChequeNumber)
		if c.AccountID == "" {
			c.AccountID = state.Context.AccountID
		}
		if c.AccountID != "" {
			// Unknown accounts pass through unbound; Commit refuses them.
			if a, ok := accounts[c.AccountID]; ok {
				if c.Currency == "" {
					c.Currency = a.Currency
				}
			} else {
				log.Warn().Int("candidate", i).Str("account_id", c.AccountID).Msg("candidate names an unknown account")
			}
		}
		if c.Currency == "" {
			c.Currency = state.Context.BaseCurrency
		}
		out[i] = c
	}
	state.Candidates = reconcile.SortChronologically(out)
	return nil
}

// Step 4: FilterDuplicatesStep drops candidates already in the ledger.
type FilterDuplicatesStep struct {
	Tolerances reconcile.Tolerances
}

func (s *FilterDuplicatesStep) Execute(ctx context.Context, state *ReconcileState) error {
	state.Candidates, state.DuplicatesSkipped = reconcile.FilterDuplicates(state.Candidates, state.Existing, s.Tolerances)
	return nil
}

// Step 5: InferBalancesStep rewrites amounts from balance snapshots.
type InferBalancesStep struct {
	Tolerances reconcile.Tolerances
}

func (s *InferBalancesStep) Execute(ctx context.Context, state *ReconcileState) error {
	out, states, err := reconcile.SimulateBalances(ctx, state.Candidates, state.Accounts, state.Context.BaseCurrency, s.Tolerances)
	if err != nil {
		return err
	}
	state.Candidates = out
	state.FinalStates = states
	return nil
}

// Step 6: MatchChequesStep relates cheque candidates to pending
// obligations of any account. An obligation claimed by an earlier
// candidate of the batch is not offered again.
type MatchChequesStep struct {
	Tolerances reconcile.Tolerances
}

func (s *MatchChequesStep) Execute(ctx context.Context, state *ReconcileState) error {
	state.Matches = make(map[int]domain.MatchResult)
	claimed := make(map[string]bool)
	for i, c := range state.Candidates {
		if !c.IsCheque || c.Kind == domain.KindObligation {
			continue
		}
		pool := make([]domain.ScheduledObligation, 0, len(state.Obligations))
		for _, o := range state.Obligations {
			if claimed[o.ID] {
				continue
			}
			pool = append(pool, o)
		}
		res, ok := reconcile.MatchCheque(c, pool, s.Tolerances)
		if !ok {
			continue
		}
		if res.Confidence.Clears() && res.ObligationID != "" {
			claimed[res.ObligationID] = true
		}
		state.Matches[i] = res
	}
	return nil
}

// NewReconcilePipeline builds the standard step sequence.
func NewReconcilePipeline(ledger *store.Ledger, tol reconcile.Tolerances) *Pipeline {
	return NewPipeline(
		&ValidateStep{},
		&LoadLedgerStep{Ledger: ledger},
		&NormalizeStep{},
		&FilterDuplicatesStep{Tolerances: tol},
		&InferBalancesStep{Tolerances: tol},
		&MatchChequesStep{Tolerances: tol},
	)
}
