// Package handlers implements the HTTP endpoints over the reconciliation
// engine, the extraction job queue and receipt storage.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-reconciler/internal/api/middleware"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/store"
)

const maxBodyBytes = 1 << 20

// statusFor maps domain and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrReservedCategory), errors.Is(err, jobs.ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it. Server errors hide the details
// behind msg.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	log.Warn().Err(err).Int("status", status).Msg(msg)
	middleware.WriteError(w, status, err.Error())
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.Invalid(name, "%q is not a non-negative integer", s)
	}
	return n, nil
}
