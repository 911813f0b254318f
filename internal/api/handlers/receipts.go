package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/gcs"
	"github.com/dvloznov/finance-reconciler/internal/gcsuploader"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

const maxReceiptBytes = 20 << 20

// ReceiptsHandler stores receipt images for later extraction.
type ReceiptsHandler struct {
	storage gcs.StorageService
	bucket  string
	now     func() time.Time
}

// NewReceiptsHandler creates a new receipts handler. A nil storage or an
// empty bucket disables uploads.
func NewReceiptsHandler(storage gcs.StorageService, bucket string) *ReceiptsHandler {
	return &ReceiptsHandler{storage: storage, bucket: bucket, now: time.Now}
}

// Upload handles POST /api/receipts/upload. The image is read from the
// multipart "file" field, or from the raw body with ?filename=.
func (h *ReceiptsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil || h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Receipt uploads are not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)

	var (
		body        io.Reader
		filename    string
		contentType string
	)
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		body, filename = file, header.Filename
		contentType = header.Header.Get("Content-Type")
	} else if errors.Is(err, http.ErrNotMultipart) {
		body, filename = r.Body, r.URL.Query().Get("filename")
		contentType = r.Header.Get("Content-Type")
	} else {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}

	filename = filepath.Base(filename)
	if filename == "." || filename == "/" || filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = gcsuploader.ContentTypeFor(filename)
	}

	object := gcsuploader.ReceiptObjectName(h.now(), filename)
	uri, err := h.storage.Upload(r.Context(), h.bucket, object, body, contentType)
	if err != nil {
		writeError(w, r, err, "Failed to upload receipt")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("gcs_uri", uri).Msg("Receipt uploaded")
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"gcs_uri":      uri,
		"object_name":  object,
		"content_type": contentType,
	})
}
