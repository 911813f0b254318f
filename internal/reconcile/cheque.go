package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// MatchCheque relates a cheque candidate to the pending obligations that
// carry the same cheque number. It returns false when the candidate is not
// a cheque or has no number; otherwise a result is always produced, with
// ConfidenceNone when nothing matched.
func MatchCheque(c domain.CandidateEvent, obligations []domain.ScheduledObligation, tol Tolerances) (domain.MatchResult, bool) {
	number := strings.TrimSpace(c.ChequeNumber)
	if !c.IsCheque || number == "" {
		return domain.MatchResult{}, false
	}

	var pool []domain.ScheduledObligation
	for _, o := range obligations {
		if o.Status == domain.ObligationPending && strings.TrimSpace(o.ChequeNumber) == number {
			pool = append(pool, o)
		}
	}

	res := domain.MatchResult{ChequeNumber: number, Candidates: len(pool)}
	switch len(pool) {
	case 0:
		res.Confidence = domain.ConfidenceNone
		res.Reason = "no pending obligation"
		res.Warning = fmt.Sprintf("no pending obligation found for cheque #%s", number)
		return res, true
	case 1:
		return matchSingle(res, c.Amount, pool[0], tol), true
	}

	best := pool[0]
	bestDelta := c.Amount.Sub(best.Amount).Abs()
	for _, o := range pool[1:] {
		if d := c.Amount.Sub(o.Amount).Abs(); d.LessThan(bestDelta) {
			best, bestDelta = o, d
		}
	}
	res.ObligationID = best.ID
	res.Scheduled = best.Amount
	res.Delta = bestDelta
	if bestDelta.LessThan(tol.Amount) {
		res.Confidence = domain.ConfidenceHigh
		res.Reason = "matched by exact amount among duplicates"
		return res, true
	}
	res.Confidence = domain.ConfidenceMedium
	res.Reason = fmt.Sprintf("closest of %d obligations: scheduled %s, paid %s, difference %s",
		len(pool), best.Amount, c.Amount, bestDelta)
	res.Warning = fmt.Sprintf("cheque #%s is ambiguous: %d pending obligations share this number", number, len(pool))
	return res, true
}

func matchSingle(res domain.MatchResult, paid decimal.Decimal, o domain.ScheduledObligation, tol Tolerances) domain.MatchResult {
	delta := paid.Sub(o.Amount).Abs()
	res.ObligationID = o.ID
	res.Scheduled = o.Amount
	res.Delta = delta

	if delta.LessThan(tol.Amount) {
		res.Confidence = domain.ConfidenceHigh
		res.Reason = "amount matches scheduled obligation"
		return res
	}

	limit := o.Amount.Abs().Mul(tol.ChequeMediumRatio)
	pct := "n/a"
	if !o.Amount.IsZero() {
		pct = delta.Div(o.Amount.Abs()).Mul(hundred).StringFixed(2) + "%"
	}
	res.Reason = fmt.Sprintf("scheduled %s, paid %s, difference %s (%s)", o.Amount, paid, delta, pct)
	if !o.Amount.IsZero() && delta.LessThanOrEqual(limit) {
		res.Confidence = domain.ConfidenceMedium
		return res
	}
	res.Confidence = domain.ConfidenceLow
	res.Warning = fmt.Sprintf("paid amount differs from scheduled by more than %s%%",
		tol.ChequeMediumRatio.Mul(hundred).String())
	return res
}
