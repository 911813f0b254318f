package extraction

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

func TestDecodeCandidates(t *testing.T) {
	raw := `[
	  {"amount": 150.00, "currency": "aed", "original_amount": "40.85", "original_currency": "usd",
	   "merchant": " Amazon.com ", "date": "2025-03-01", "time": "18:04", "category": "Shopping",
	   "kind": "expense", "account_id": "acc-1", "is_cheque": false,
	   "snapshot_meta": {"available_balance": 2000, "available_credit": null}},
	  {"amount": "8,500", "merchant": "Landlord", "date": "2025-04-01", "kind": "OBLIGATION",
	   "cheque_number": 104, "notes": null, "snapshot_meta": {}}
	]`

	got, err := DecodeCandidates([]byte(raw))
	require.NoError(t, err)
	require.Len(t, got, 2)

	fx := got[0]
	assert.Equal(t, "150", fx.Amount.String())
	assert.Equal(t, "AED", fx.Currency)
	assert.Equal(t, "40.85", fx.OriginalAmount.Decimal.String())
	assert.Equal(t, "USD", fx.OriginalCurrency)
	assert.Equal(t, "Amazon.com", fx.Merchant)
	assert.Equal(t, civil.Date{Year: 2025, Month: 3, Day: 1}, fx.Date)
	assert.Equal(t, "18:04", fx.Time)
	assert.Equal(t, domain.KindExpense, fx.Kind)
	require.NotNil(t, fx.Snapshot)
	assert.Equal(t, "2000", fx.Snapshot.AvailableBalance.Decimal.String())
	assert.False(t, fx.Snapshot.AvailableCredit.Valid)

	ob := got[1]
	assert.Equal(t, "8500", ob.Amount.String())
	assert.Equal(t, "104", ob.ChequeNumber)
	assert.Equal(t, domain.KindObligation, ob.Kind)
	assert.Nil(t, ob.Snapshot)
}

func TestDecodeCandidates_Wrapped(t *testing.T) {
	got, err := DecodeCandidates([]byte(`{"transactions": [{"amount": 1, "merchant": "x", "date": "2025-01-01", "kind": "INCOME"}]}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.KindIncome, got[0].Kind)
}

func TestDecodeCandidates_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
		index string
	}{
		{"not json", `nope`, "output", ""},
		{"wrong root", `"text"`, "output", ""},
		{"no list key", `{"items": []}`, "output", ""},
		{"element not object", `[1]`, "candidate", "candidate 0"},
		{"missing amount", `[{"merchant": "x", "date": "2025-01-01", "kind": "EXPENSE"}]`, "amount", "candidate 0"},
		{"amount not number", `[{"amount": "ten", "merchant": "x", "date": "2025-01-01", "kind": "EXPENSE"}]`, "amount", "candidate 0"},
		{"negative amount", `[{"amount": -3, "merchant": "x", "date": "2025-01-01", "kind": "EXPENSE"}]`, "amount", "candidate 0"},
		{"bad date", `[{"amount": 1, "merchant": "x", "date": "01/02/2025", "kind": "EXPENSE"}]`, "date", "candidate 0"},
		{"impossible date", `[{"amount": 1, "merchant": "x", "date": "2025-02-30", "kind": "EXPENSE"}]`, "date", "candidate 0"},
		{"bad kind", `[{"amount": 1, "merchant": "x", "date": "2025-01-01", "kind": "TRANSFER"}]`, "kind", "candidate 0"},
		{"bad time", `[{"amount": 1, "merchant": "x", "date": "2025-01-01", "kind": "EXPENSE", "time": "7pm"}]`, "time", "candidate 0"},
		{"empty merchant", `[{"amount": 1, "merchant": " ", "date": "2025-01-01", "kind": "EXPENSE"}]`, "merchant", "candidate 0"},
		{"bool as string", `[{"amount": 1, "merchant": "x", "date": "2025-01-01", "kind": "EXPENSE", "is_transfer": "yes"}]`, "is_transfer", "candidate 0"},
		{"bad snapshot", `[{"amount": 1, "merchant": "x", "date": "2025-01-01", "kind": "EXPENSE", "snapshot_meta": {"available_balance": "lots"}}]`, "snapshot_meta.available_balance", "candidate 0"},
		{"second element", `[{"amount": 1, "merchant": "x", "date": "2025-01-01", "kind": "EXPENSE"}, {"amount": 1, "date": "2025-01-01", "kind": "EXPENSE"}]`, "merchant", "candidate 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCandidates([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			var fe *domain.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
			assert.Contains(t, err.Error(), tt.index)
		})
	}
}

func TestMarkCheque(t *testing.T) {
	keywords := []string{"CHQ", "CHEQUE"}
	tests := []struct {
		name       string
		merchant   string
		number     string
		wantCheque bool
		wantNumber string
	}{
		{"keyword with number", "CLG CHQ 001042 EMIRATES NBD", "", true, "001042"},
		{"lower case", "cheque no. 77 paid", "", true, ""},
		{"model number kept", "Landlord", "1043", true, "1043"},
		{"embedded word ignored", "CHQUEENS CAFE", "", false, ""},
		{"no keyword", "Carrefour", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := domain.CandidateEvent{Merchant: tt.merchant, ChequeNumber: tt.number}
			markCheque(&c, keywords)
			assert.Equal(t, tt.wantCheque, c.IsCheque)
			assert.Equal(t, tt.wantNumber, c.ChequeNumber)
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"chatty", "Here you go:\n[{\"a\":1}]\nThanks", `[{"a":1}]`},
		{"object", `{"x": 1}`, `{"x": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}
