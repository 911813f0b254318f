package handlers

import (
	"net/http"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

// ReconcileHandler exposes the engine operations.
type ReconcileHandler struct {
	engine *pipeline.Engine
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(engine *pipeline.Engine) *ReconcileHandler {
	return &ReconcileHandler{engine: engine}
}

// Reconcile handles POST /api/reconcile. Nothing is written.
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates []domain.CandidateEvent    `json:"candidates"`
		Context    pipeline.ReconcileContext `json:"context"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.engine.ReconcileBatch(r.Context(), req.Candidates, req.Context)
	if err != nil {
		writeError(w, r, err, "Failed to reconcile batch")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Commit handles POST /api/commit. The body is usually a reviewed
// reconcile result: confirmed candidates plus the matches to clear.
func (h *ReconcileHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates []domain.CandidateEvent    `json:"candidates"`
		Confirmed  []domain.CandidateEvent    `json:"confirmed"`
		Matches    map[int]domain.MatchResult `json:"matches"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	candidates := req.Candidates
	if len(candidates) == 0 {
		candidates = req.Confirmed
	}
	res, err := h.engine.Commit(r.Context(), candidates, req.Matches)
	if err != nil {
		writeError(w, r, err, "Failed to commit batch")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Discrepancy handles POST /api/discrepancy
func (h *ReconcileHandler) Discrepancy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}
	s, err := h.engine.DetectDiscrepancy(r.Context(), req.TransactionID)
	if err != nil {
		writeError(w, r, err, "Failed to detect discrepancy")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"discrepancy": s != nil,
		"suggestion":  s,
	})
}

// ApplyAdjustment handles POST /api/adjustments
func (h *ReconcileHandler) ApplyAdjustment(w http.ResponseWriter, r *http.Request) {
	var s domain.AdjustmentSuggestion
	if !decodeBody(w, r, &s) {
		return
	}
	res, err := h.engine.ApplyAdjustment(r.Context(), s)
	if err != nil {
		writeError(w, r, err, "Failed to apply adjustment")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

// CreateSeries handles POST /api/series
func (h *ReconcileHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	var p pipeline.SeriesParams
	if !decodeBody(w, r, &p) {
		return
	}
	res, err := h.engine.CreateObligationSeries(r.Context(), p)
	if err != nil {
		writeError(w, r, err, "Failed to create obligation series")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

// ValidateSeries handles GET /api/series/{id}/validate
func (h *ReconcileHandler) ValidateSeries(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.ValidateSeries(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "Failed to validate series")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// NextInSeries handles GET /api/series/{id}/next
func (h *ReconcileHandler) NextInSeries(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.SuggestNext(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "Failed to suggest next obligation")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
