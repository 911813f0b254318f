package reconcile_test

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ndec(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func day(y int, m time.Month, d int) civil.Date { return civil.Date{Year: y, Month: m, Day: d} }

func expense(amount string, date civil.Date, tod string) domain.CandidateEvent {
	return domain.CandidateEvent{Amount: dec(amount), Currency: "AED", Date: date, Time: tod, Kind: domain.KindExpense}
}

func income(amount string, date civil.Date, tod string) domain.CandidateEvent {
	c := expense(amount, date, tod)
	c.Kind = domain.KindIncome
	return c
}

func confirmed(id string, c domain.CandidateEvent) domain.ConfirmedTransaction {
	return domain.ConfirmedTransaction{CandidateEvent: c, ID: id}
}

func pending(id, number, amount string, due civil.Date) domain.ScheduledObligation {
	return domain.ScheduledObligation{
		ID:           id,
		ChequeNumber: number,
		Amount:       dec(amount),
		DueDate:      due,
		Status:       domain.ObligationPending,
	}
}
