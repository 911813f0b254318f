// Package api assembles the HTTP routes and middleware.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-reconciler/internal/api/handlers"
	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/gcs"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

// Deps are the collaborators the routes are served from.
type Deps struct {
	Engine    *pipeline.Engine
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Storage   gcs.StorageService
	Bucket    string
	APIKey    string
	// ServiceName enables per-request tracing spans when set.
	ServiceName string
	Log         zerolog.Logger
}

// NewRouter returns the API handler with the middleware chain applied.
func NewRouter(d Deps) http.Handler {
	ledger := handlers.NewLedgerHandler(d.Engine)
	reconcile := handlers.NewReconcileHandler(d.Engine)
	extractions := handlers.NewExtractionsHandler(d.Publisher, d.JobStore)
	receipts := handlers.NewReceiptsHandler(d.Storage, d.Bucket)

	mux := http.NewServeMux()

	// Ledger endpoints
	mux.HandleFunc("GET /api/accounts", ledger.ListAccounts)
	mux.HandleFunc("POST /api/accounts/{id}/adjust", ledger.AdjustAccount)
	mux.HandleFunc("GET /api/transactions", ledger.ListTransactions)
	mux.HandleFunc("GET /api/obligations", ledger.ListObligations)
	mux.HandleFunc("GET /api/categories", ledger.ListCategories)
	mux.HandleFunc("POST /api/categories", ledger.CreateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", ledger.DeleteCategory)

	// Reconciliation endpoints
	mux.HandleFunc("POST /api/reconcile", reconcile.Reconcile)
	mux.HandleFunc("POST /api/commit", reconcile.Commit)
	mux.HandleFunc("POST /api/discrepancy", reconcile.Discrepancy)
	mux.HandleFunc("POST /api/adjustments", reconcile.ApplyAdjustment)
	mux.HandleFunc("POST /api/series", reconcile.CreateSeries)
	mux.HandleFunc("GET /api/series/{id}/validate", reconcile.ValidateSeries)
	mux.HandleFunc("GET /api/series/{id}/next", reconcile.NextInSeries)

	// Extraction jobs endpoints
	mux.HandleFunc("POST /api/extractions", extractions.Create)
	mux.HandleFunc("GET /api/extractions", extractions.List)
	mux.HandleFunc("GET /api/extractions/{id}", extractions.Get)
	mux.HandleFunc("DELETE /api/extractions/{id}", extractions.Cancel)

	mux.HandleFunc("POST /api/receipts/upload", receipts.Upload)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(d.Log),
		middleware.RequestID,
		middleware.Logger(d.Log),
		middleware.CORS,
		middleware.APIKey(d.APIKey),
	}
	if d.ServiceName != "" {
		chain = append([]func(http.Handler) http.Handler{middleware.Telemetry(d.ServiceName)}, chain...)
	}
	return middleware.Chain(mux, chain...)
}
