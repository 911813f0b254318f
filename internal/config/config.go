// Package config loads service configuration from a file and RECONCILER_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/dvloznov/finance-reconciler/internal/reconcile"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Tolerances ToleranceConfig  `mapstructure:"tolerances"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Log        LogConfig        `mapstructure:"log"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port   string `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, bigquery or postgres
	SeedFile string         `mapstructure:"seed_file"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type BigQueryConfig struct {
	ProjectID string `mapstructure:"project_id"`
	DatasetID string `mapstructure:"dataset_id"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ExtractionConfig struct {
	Model          string   `mapstructure:"model"`
	APIVersion     string   `mapstructure:"api_version"`
	BaseCurrency   string   `mapstructure:"base_currency"`
	ChequeKeywords []string `mapstructure:"cheque_keywords"`
}

type StorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueSize  int `mapstructure:"queue_size"`
	MaxRetries int `mapstructure:"max_retries"`
}

// ToleranceConfig holds the reconciliation thresholds as decimal strings.
type ToleranceConfig struct {
	Amount                 string `mapstructure:"amount"`
	ChequeMediumRatio      string `mapstructure:"cheque_medium_ratio"`
	SeriesDateRatio        string `mapstructure:"series_date_ratio"`
	SeriesMinToleranceDays int    `mapstructure:"series_min_tolerance_days"`
	SeriesMaxGap           int    `mapstructure:"series_max_gap"`
}

type ReconcileConfig struct {
	AutoApplyAdjustments bool `mapstructure:"auto_apply_adjustments"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	MetricsPort  string `mapstructure:"metrics_port"`
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so that AutomaticEnv overrides reach Unmarshal.
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.seed_file", "")
	v.SetDefault("store.bigquery.project_id", "")
	v.SetDefault("store.bigquery.dataset_id", "finance")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("reconcile.auto_apply_adjustments", false)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("store.postgres.max_open_conns", 25)
	v.SetDefault("store.postgres.max_idle_conns", 5)
	v.SetDefault("store.postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("extraction.model", "gemini-2.5-flash")
	v.SetDefault("extraction.api_version", "v1")
	v.SetDefault("extraction.base_currency", "AED")
	v.SetDefault("extraction.cheque_keywords", []string{"CHQ", "CHEQUE", "CHECK", "CLG"})
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("tolerances.amount", "0.01")
	v.SetDefault("tolerances.cheque_medium_ratio", "0.05")
	v.SetDefault("tolerances.series_date_ratio", "0.2")
	v.SetDefault("tolerances.series_min_tolerance_days", 3)
	v.SetDefault("tolerances.series_max_gap", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("telemetry.service_name", "finance-reconciler")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.metrics_port", "9464")
}

// New returns a viper instance with defaults and environment binding.
// Environment variables use the RECONCILER_ prefix with "_" for nesting,
// e.g. RECONCILER_STORE_BACKEND.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from file and environment variables. An
// empty path loads defaults and environment only.
func LoadConfig(configPath string) (*Config, error) {
	v := New()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates configuration from v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "bigquery":
		if c.Store.BigQuery.ProjectID == "" {
			return fmt.Errorf("store.bigquery.project_id is required for the bigquery backend")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, bigquery, postgres", c.Store.Backend)
	}
	if _, err := c.Tolerances.Parse(); err != nil {
		return err
	}
	return nil
}

// Parse converts the configured thresholds.
func (t ToleranceConfig) Parse() (reconcile.Tolerances, error) {
	out := reconcile.DefaultTolerances()
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"tolerances.amount", t.Amount, &out.Amount},
		{"tolerances.cheque_medium_ratio", t.ChequeMediumRatio, &out.ChequeMediumRatio},
		{"tolerances.series_date_ratio", t.SeriesDateRatio, &out.SeriesDateRatio},
	} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return out, fmt.Errorf("%s: %w", f.name, err)
		}
		if d.IsNegative() {
			return out, fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	if t.SeriesMinToleranceDays > 0 {
		out.SeriesMinToleranceDays = t.SeriesMinToleranceDays
	}
	if t.SeriesMaxGap > 0 {
		out.SeriesMaxGap = t.SeriesMaxGap
	}
	return out, nil
}
