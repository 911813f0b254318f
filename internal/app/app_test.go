package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestOpenStore_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)

	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{"accounts": [{"id": "acc-1", "name": "Current", "currency": "AED", "balance": "10"}]}`), 0o600))
	cfg.Store.SeedFile = seed

	s, closeFn, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	defer closeFn()

	l := store.NewLedger(s)
	accounts, err := l.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	categories, err := l.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, domain.AdjustmentCategoryID, categories[0].ID)
}

func TestOpenStore_Errors(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Store.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, _, err := OpenStore(context.Background(), cfg)
	assert.Error(t, err)

	cfg = memoryConfig(t)
	cfg.Store.Backend = "sqlite"
	_, _, err = OpenStore(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown backend")
}

func TestNewEngine(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Extraction.BaseCurrency = "GBP"
	cfg.Tolerances.Amount = "0.5"

	s, closeFn, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	engine, err := NewEngine(cfg, s)
	require.NoError(t, err)
	assert.Equal(t, "GBP", engine.BaseCurrency())
	assert.Equal(t, "0.5", engine.Tolerances().Amount.String())

	cfg.Tolerances.Amount = "lots"
	_, err = NewEngine(cfg, s)
	assert.Error(t, err)
}
