package reconcile

import (
	"slices"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// SortChronologically returns the candidates ordered by (date, time), with a
// missing time treated as midnight. Ties keep their input order.
func SortChronologically(candidates []domain.CandidateEvent) []domain.CandidateEvent {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, domain.CompareChronology)
	return out
}

// SortTransactions orders confirmed transactions the same way.
func SortTransactions(txs []domain.ConfirmedTransaction) []domain.ConfirmedTransaction {
	out := slices.Clone(txs)
	slices.SortStableFunc(out, func(a, b domain.ConfirmedTransaction) int {
		return domain.CompareChronology(a.CandidateEvent, b.CandidateEvent)
	})
	return out
}
