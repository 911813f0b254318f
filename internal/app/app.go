// Package app builds the runtime components from configuration. It is
// shared by the API server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/extraction"
	bq "github.com/dvloznov/finance-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/finance-reconciler/internal/infra/postgres"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/store/inmemory"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return logger.Configure(logger.Options{Level: cfg.Log.Level, Console: cfg.Log.Console})
}

// OpenStore opens the configured backend and seeds the reserved
// categories. The returned close function releases the backend.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	log := logger.FromContext(ctx)
	noop := func() error { return nil }

	var (
		s       store.Store
		closeFn = noop
	)
	switch cfg.Store.Backend {
	case "memory":
		mem := inmemory.NewStore()
		if cfg.Store.SeedFile != "" {
			if err := mem.SeedFile(cfg.Store.SeedFile); err != nil {
				return nil, noop, fmt.Errorf("OpenStore: %w", err)
			}
		}
		s = mem
	case "bigquery":
		bqs, err := bq.NewStore(ctx, cfg.Store.BigQuery.ProjectID, cfg.Store.BigQuery.DatasetID)
		if err != nil {
			return nil, noop, fmt.Errorf("OpenStore: %w", err)
		}
		s, closeFn = bqs, bqs.Close
	case "postgres":
		pg := cfg.Store.Postgres
		db, err := postgres.Open(ctx, pg.DSN, postgres.PoolConfig{
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: pg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("OpenStore: %w", err)
		}
		pgs := postgres.NewStore(db)
		if err := pgs.Migrate(ctx); err != nil {
			pgs.Close()
			return nil, noop, fmt.Errorf("OpenStore: %w", err)
		}
		s, closeFn = pgs, pgs.Close
	default:
		return nil, noop, fmt.Errorf("OpenStore: unknown backend %q", cfg.Store.Backend)
	}

	if err := store.NewLedger(s).EnsureReservedCategories(ctx); err != nil {
		closeFn()
		return nil, noop, fmt.Errorf("OpenStore: %w", err)
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("store opened")
	return s, closeFn, nil
}

// NewEngine builds the reconciliation engine over s.
func NewEngine(cfg *config.Config, s store.Store) (*pipeline.Engine, error) {
	tol, err := cfg.Tolerances.Parse()
	if err != nil {
		return nil, fmt.Errorf("NewEngine: %w", err)
	}
	return pipeline.NewEngine(s,
		pipeline.WithTolerances(tol),
		pipeline.WithBaseCurrency(cfg.Extraction.BaseCurrency),
		pipeline.WithAutoApplyAdjustments(cfg.Reconcile.AutoApplyAdjustments),
	), nil
}

// NewExtractor returns the Gemini extractor. fetcher resolves gs:// image
// URIs and may be nil.
func NewExtractor(ctx context.Context, cfg *config.Config, fetcher extraction.ImageFetcher) (extraction.Extractor, error) {
	return extraction.NewGeminiExtractor(ctx, extraction.GeminiConfig{
		Model:      cfg.Extraction.Model,
		APIVersion: cfg.Extraction.APIVersion,
	}, fetcher)
}
