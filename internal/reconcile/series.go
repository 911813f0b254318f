package reconcile

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// ParseChequeNumber parses the integer value of a cheque number.
func ParseChequeNumber(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// FormatChequeNumber renders n with the zero padding of template.
func FormatChequeNumber(n int64, template string) string {
	s := strconv.FormatInt(n, 10)
	t := strings.TrimSpace(template)
	if strings.HasPrefix(t, "0") && len(t) > len(s) {
		s = strings.Repeat("0", len(t)-len(s)) + s
	}
	return s
}

// CompareObligations orders obligations by due date, then cheque number,
// then ID. It is a total order, so sorting is independent of input order.
func CompareObligations(a, b domain.ScheduledObligation) int {
	if c := a.DueDate.Compare(b.DueDate); c != 0 {
		return c
	}
	an, aok := ParseChequeNumber(a.ChequeNumber)
	bn, bok := ParseChequeNumber(b.ChequeNumber)
	switch {
	case aok && bok && an != bn:
		return cmp.Compare(an, bn)
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	}
	if c := strings.Compare(strings.TrimSpace(a.ChequeNumber), strings.TrimSpace(b.ChequeNumber)); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortObligations returns a copy ordered by CompareObligations.
func SortObligations(obligations []domain.ScheduledObligation) []domain.ScheduledObligation {
	out := slices.Clone(obligations)
	slices.SortFunc(out, CompareObligations)
	return out
}

// ValidateSeries sorts the obligations and validates the result.
func ValidateSeries(obligations []domain.ScheduledObligation, tol Tolerances) domain.ValidationResult {
	return ValidateOrdered(SortObligations(obligations), tol)
}

// ValidateOrdered checks numbering and date progression of obligations in
// the order given.
func ValidateOrdered(obligations []domain.ScheduledObligation, tol Tolerances) domain.ValidationResult {
	issues := []domain.ValidationIssue{}
	issues = append(issues, numberingIssues(obligations, tol)...)
	issues = append(issues, dateIssues(obligations, tol)...)

	res := domain.ValidationResult{IsValid: true, Issues: issues}
	for _, is := range issues {
		if is.Severity == domain.SeverityError {
			res.IsValid = false
		}
		switch is.Check {
		case domain.CheckNumbering:
			res.HasNumberingIssues = true
		case domain.CheckDate:
			res.HasDateIssues = true
		}
	}
	return res
}

func numberingIssues(obligations []domain.ScheduledObligation, tol Tolerances) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	issue := func(sev domain.Severity, o domain.ScheduledObligation, format string, args ...any) {
		issues = append(issues, domain.ValidationIssue{
			Severity:     sev,
			Check:        domain.CheckNumbering,
			ObligationID: o.ID,
			ChequeNumber: o.ChequeNumber,
			Message:      fmt.Sprintf(format, args...),
		})
	}

	var (
		prev    int64
		prevRaw string
		started bool
	)
	for _, o := range obligations {
		n, ok := ParseChequeNumber(o.ChequeNumber)
		if !ok {
			// Only adjacent numeric entries are compared.
			started = false
			continue
		}
		if started {
			switch step := n - prev; {
			case step < 0:
				issue(domain.SeverityError, o, "cheque #%s is lower than the previous #%s", o.ChequeNumber, prevRaw)
			case step > int64(tol.SeriesMaxGap):
				issue(domain.SeverityWarning, o, "gap before cheque #%s: %d numbers skipped after #%s", o.ChequeNumber, step-1, prevRaw)
			}
		}
		prev, prevRaw, started = n, o.ChequeNumber, true
	}

	seen := make(map[string]int)
	for _, o := range obligations {
		if k := numberKey(o.ChequeNumber); k != "" {
			seen[k]++
		}
	}
	for _, o := range obligations {
		if n := seen[numberKey(o.ChequeNumber)]; n > 1 {
			issue(domain.SeverityError, o, "cheque #%s is used by %d obligations", strings.TrimSpace(o.ChequeNumber), n)
		}
	}
	return issues
}

func numberKey(s string) string {
	if n, ok := ParseChequeNumber(s); ok {
		return strconv.FormatInt(n, 10)
	}
	return strings.TrimSpace(s)
}

func dateIssues(obligations []domain.ScheduledObligation, tol Tolerances) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	issue := func(sev domain.Severity, o domain.ScheduledObligation, format string, args ...any) {
		issues = append(issues, domain.ValidationIssue{
			Severity:     sev,
			Check:        domain.CheckDate,
			ObligationID: o.ID,
			ChequeNumber: o.ChequeNumber,
			Message:      fmt.Sprintf(format, args...),
		})
	}

	minTol := decimal.NewFromInt(int64(tol.SeriesMinToleranceDays))
	var intervals []int
	for i := 1; i < len(obligations); i++ {
		prev, cur := obligations[i-1], obligations[i]
		if !prev.DueDate.IsValid() || !cur.DueDate.IsValid() {
			continue
		}
		days := cur.DueDate.DaysSince(prev.DueDate)
		switch {
		case days < 0:
			issue(domain.SeverityError, cur, "due date %s is before the previous due date %s", cur.DueDate, prev.DueDate)
			continue
		case days == 0:
			issue(domain.SeverityWarning, cur, "due date %s repeats the previous due date", cur.DueDate)
			continue
		}

		intervals = append(intervals, days)
		if len(intervals) < 2 {
			continue
		}
		avg := meanDays(intervals[:min(3, len(intervals))])
		allowed := decimal.Max(minTol, avg.Mul(tol.SeriesDateRatio))
		if decimal.NewFromInt(int64(days)).Sub(avg).Abs().GreaterThan(allowed) {
			issue(domain.SeverityWarning, cur, "expected about %s days after %s, got %d", avg.Round(1), prev.DueDate, days)
		}
	}
	return issues
}

func meanDays(intervals []int) decimal.Decimal {
	sum := 0
	for _, d := range intervals {
		sum += d
	}
	return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(intervals))))
}

// SuggestNextChequeNumber returns the last parseable cheque number of the
// series plus one.
func SuggestNextChequeNumber(obligations []domain.ScheduledObligation) (string, bool) {
	sorted := SortObligations(obligations)
	for i := len(sorted) - 1; i >= 0; i-- {
		if n, ok := ParseChequeNumber(sorted[i].ChequeNumber); ok {
			return FormatChequeNumber(n+1, sorted[i].ChequeNumber), true
		}
	}
	return "", false
}

// SuggestNextDueDate returns the last due date plus the mean interval of
// the series, or one month later when no interval can be measured.
func SuggestNextDueDate(obligations []domain.ScheduledObligation) (civil.Date, bool) {
	var dates []civil.Date
	for _, o := range SortObligations(obligations) {
		if o.DueDate.IsValid() {
			dates = append(dates, o.DueDate)
		}
	}
	if len(dates) == 0 {
		return civil.Date{}, false
	}
	last := dates[len(dates)-1]
	if len(dates) < 2 {
		return AddMonths(last, 1), true
	}
	span := decimal.NewFromInt(int64(last.DaysSince(dates[0])))
	mean := span.Div(decimal.NewFromInt(int64(len(dates) - 1))).Round(0).IntPart()
	if mean <= 0 {
		return AddMonths(last, 1), true
	}
	return last.AddDays(int(mean)), true
}
