package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/reconcile"
)

func TestApplyToAccount(t *testing.T) {
	disabled := false
	enabled := true

	snap := expense("10", day(2024, 1, 1), "")
	snap.Snapshot = &domain.SnapshotMeta{AvailableBalance: ndec("70"), AvailableCredit: ndec("4900")}
	credit := expense("10", day(2024, 1, 1), "")
	credit.Snapshot = &domain.SnapshotMeta{AvailableCredit: ndec("4900")}
	obligation := expense("10", day(2024, 1, 1), "")
	obligation.Kind = domain.KindObligation

	tests := []struct {
		name        string
		account     domain.Account
		tx          domain.CandidateEvent
		wantBalance string
		wantChanged bool
	}{
		{"expense delta", domain.Account{Balance: dec("100")}, expense("10", day(2024, 1, 1), ""), "90", true},
		{"income delta", domain.Account{Balance: dec("100"), AutoUpdateBalance: &enabled}, income("10", day(2024, 1, 1), ""), "110", true},
		{"balance snapshot wins", domain.Account{Balance: dec("100"), CreditLimit: ndec("5000")}, snap, "70", true},
		{"credit snapshot", domain.Account{Balance: dec("-50"), CreditLimit: ndec("5000")}, credit, "-100", true},
		{"credit snapshot without limit falls back to delta", domain.Account{Balance: dec("100")}, credit, "90", true},
		{"obligation does not move", domain.Account{Balance: dec("100")}, obligation, "100", false},
		{"auto update disabled", domain.Account{Balance: dec("100"), AutoUpdateBalance: &disabled}, snap, "100", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := reconcile.ApplyToAccount(tt.account, tt.tx)
			assert.True(t, got.Balance.Equal(dec(tt.wantBalance)), "balance = %s", got.Balance)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestForceApplyIgnoresAutoUpdate(t *testing.T) {
	disabled := false
	account := domain.Account{ID: "a", Balance: dec("100"), AutoUpdateBalance: &disabled}
	s := reconcile.ManualAdjustment(account, dec("80"), day(2024, 1, 1), reconcile.DefaultTolerances())

	got, changed := reconcile.ForceApply(account, s.Candidate())
	assert.True(t, changed)
	assert.True(t, got.Balance.Equal(dec("80")))
}
