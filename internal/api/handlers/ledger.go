package handlers

import (
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

// LedgerHandler serves the read endpoints and manual balance edits.
type LedgerHandler struct {
	engine *pipeline.Engine
	now    func() time.Time
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(engine *pipeline.Engine) *LedgerHandler {
	return &LedgerHandler{engine: engine, now: time.Now}
}

// ListAccounts handles GET /api/accounts
func (h *LedgerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.engine.Ledger().Accounts(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// AdjustAccount handles POST /api/accounts/{id}/adjust
func (h *LedgerHandler) AdjustAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetBalance *decimal.Decimal `json:"target_balance"`
		Date          *civil.Date      `json:"date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TargetBalance == nil {
		middleware.WriteError(w, http.StatusBadRequest, "target_balance is required")
		return
	}
	date := civil.DateOf(h.now())
	if req.Date != nil {
		date = *req.Date
	}

	res, err := h.engine.AdjustBalance(r.Context(), r.PathValue("id"), *req.TargetBalance, date)
	if err != nil {
		writeError(w, r, err, "Failed to adjust balance")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ListTransactions handles GET /api/transactions?account_id=
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.engine.Ledger().Transactions(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to query transactions")
		return
	}
	accountID := r.URL.Query().Get("account_id")

	// Return array directly for frontend compatibility
	out := []domain.ConfirmedTransaction{}
	for _, tx := range txs {
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		out = append(out, tx)
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// ListObligations handles GET /api/obligations?series_id=&status=
func (h *LedgerHandler) ListObligations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := domain.ObligationStatus(strings.ToUpper(query.Get("status")))
	if status != "" && status != domain.ObligationPending && status != domain.ObligationCleared {
		middleware.WriteError(w, http.StatusBadRequest, "status must be PENDING or CLEARED")
		return
	}

	var (
		obligations []domain.ScheduledObligation
		err         error
	)
	if seriesID := query.Get("series_id"); seriesID != "" {
		obligations, err = h.engine.Ledger().SeriesObligations(r.Context(), seriesID)
	} else {
		obligations, err = h.engine.Ledger().Obligations(r.Context())
	}
	if err != nil {
		writeError(w, r, err, "Failed to list obligations")
		return
	}

	out := []domain.ScheduledObligation{}
	for _, o := range obligations {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"obligations": out,
		"count":       len(out),
	})
}

// ListCategories handles GET /api/categories
func (h *LedgerHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.engine.Ledger().Categories(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to list categories")
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// CreateCategory handles POST /api/categories
func (h *LedgerHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c domain.Category
	if !decodeBody(w, r, &c) {
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Reserved || c.ID == domain.AdjustmentCategoryID {
		middleware.WriteError(w, http.StatusConflict, "reserved categories cannot be created")
		return
	}
	if err := h.engine.Ledger().PutCategory(r.Context(), c); err != nil {
		writeError(w, r, err, "Failed to save category")
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().Str("category_id", c.ID).Msg("category saved")
	middleware.WriteJSON(w, http.StatusCreated, c)
}

// DeleteCategory handles DELETE /api/categories/{id}
func (h *LedgerHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ledger().DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err, "Failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
