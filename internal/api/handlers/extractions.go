package handlers

import (
	"net/http"
	"strings"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/extraction"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

// ExtractionsHandler handles extraction job endpoints.
type ExtractionsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
}

// NewExtractionsHandler creates a new extractions handler.
func NewExtractionsHandler(publisher jobs.Publisher, store jobs.JobStore) *ExtractionsHandler {
	return &ExtractionsHandler{publisher: publisher, store: store}
}

// Create handles POST /api/extractions
func (h *ExtractionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input   extraction.Input          `json:"input"`
		Context pipeline.ReconcileContext `json:"context"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	job := &jobs.ExtractJob{Input: req.Input, Context: req.Context}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		writeError(w, r, err, "Failed to enqueue extraction job")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("job_id", job.JobID).Msg("Extraction job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// List handles GET /api/extractions?status=&limit=&offset=
func (h *ExtractionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := jobs.JobFilter{Status: jobs.JobStatus(strings.ToUpper(r.URL.Query().Get("status")))}
	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err, "Invalid limit")
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, err, "Invalid offset")
		return
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, "Failed to list jobs")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// Get handles GET /api/extractions/{id}
func (h *ExtractionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// Cancel handles DELETE /api/extractions/{id}. The pending batch is
// discarded.
func (h *ExtractionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.publisher.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "Failed to cancel job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}
