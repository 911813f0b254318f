package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "gemini-2.5-flash", cfg.Extraction.Model)
	assert.Equal(t, 5*time.Minute, cfg.Store.Postgres.ConnMaxLifetime)
	assert.Contains(t, cfg.Extraction.ChequeKeywords, "CHQ")

	tol, err := cfg.Tolerances.Parse()
	require.NoError(t, err)
	assert.Equal(t, "0.01", tol.Amount.String())
	assert.Equal(t, "0.05", tol.ChequeMediumRatio.String())
	assert.Equal(t, 3, tol.SeriesMaxGap)
}

func TestLoadConfigFromFile(t *testing.T) {
	configContent := `
[store]
backend = "postgres"

  [store.postgres]
  dsn = "postgres://ledger@localhost/ledger?sslmode=disable"
  max_open_conns = 10

[extraction]
base_currency = "GBP"
cheque_keywords = ["CHQ"]

[tolerances]
amount = "0.005"
cheque_medium_ratio = "0.1"
series_max_gap = 5

[reconcile]
auto_apply_adjustments = true
`
	path := filepath.Join(t.TempDir(), "reconciler.toml")
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Store.Postgres.MaxOpenConns)
	assert.Equal(t, 5, cfg.Store.Postgres.MaxIdleConns)
	assert.Equal(t, "GBP", cfg.Extraction.BaseCurrency)
	assert.Equal(t, []string{"CHQ"}, cfg.Extraction.ChequeKeywords)
	assert.True(t, cfg.Reconcile.AutoApplyAdjustments)

	tol, err := cfg.Tolerances.Parse()
	require.NoError(t, err)
	assert.Equal(t, "0.005", tol.Amount.String())
	assert.Equal(t, "0.1", tol.ChequeMediumRatio.String())
	assert.Equal(t, 5, tol.SeriesMaxGap)
	assert.Equal(t, 3, tol.SeriesMinToleranceDays)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("RECONCILER_STORE_BACKEND", "bigquery")
	t.Setenv("RECONCILER_STORE_BIGQUERY_PROJECT_ID", "ledger-prod")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "bigquery", cfg.Store.Backend)
	assert.Equal(t, "ledger-prod", cfg.Store.BigQuery.ProjectID)
	assert.Equal(t, "finance", cfg.Store.BigQuery.DatasetID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown backend", map[string]string{"RECONCILER_STORE_BACKEND": "sqlite"}, "not one of"},
		{"bigquery without project", map[string]string{"RECONCILER_STORE_BACKEND": "bigquery"}, "project_id"},
		{"postgres without dsn", map[string]string{"RECONCILER_STORE_BACKEND": "postgres"}, "dsn"},
		{"bad tolerance", map[string]string{"RECONCILER_TOLERANCES_AMOUNT": "one cent"}, "tolerances.amount"},
		{"negative tolerance", map[string]string{"RECONCILER_TOLERANCES_SERIES_DATE_RATIO": "-0.2"}, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
