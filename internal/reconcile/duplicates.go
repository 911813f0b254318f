package reconcile

import (
	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// IsDuplicate reports whether candidate repeats an existing entry: the same
// kind, date and time string with an amount within tolerance. The merchant
// label is not compared.
func IsDuplicate(candidate domain.CandidateEvent, existing domain.ConfirmedTransaction, tol Tolerances) bool {
	return existing.Kind == candidate.Kind &&
		existing.Date == candidate.Date &&
		existing.Time == candidate.Time &&
		tol.withinAmount(existing.Amount, candidate.Amount)
}

// FilterDuplicates drops candidates that repeat a confirmed transaction and
// returns the survivors with the number skipped.
func FilterDuplicates(candidates []domain.CandidateEvent, confirmed []domain.ConfirmedTransaction, tol Tolerances) ([]domain.CandidateEvent, int) {
	type dayKey struct {
		kind domain.Kind
		date string
	}
	byDay := make(map[dayKey][]domain.ConfirmedTransaction)
	for _, tx := range confirmed {
		k := dayKey{tx.Kind, tx.Date.String()}
		byDay[k] = append(byDay[k], tx)
	}

	kept := make([]domain.CandidateEvent, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		dup := false
		for _, tx := range byDay[dayKey{c.Kind, c.Date.String()}] {
			if IsDuplicate(c, tx, tol) {
				dup = true
				break
			}
		}
		if dup {
			skipped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, skipped
}
