// Package handler serves the settlement engine's HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openmatch/nftx/internal/domain"
)

// writeJSON marshals v as JSON and writes it with the given status. A failed
// marshal falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors onto HTTP statuses so API
// clients can distinguish bad requests from engine failures.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrNonceInactive),
		errors.Is(err, domain.ErrUnsupportedExecParams),
		errors.Is(err, domain.ErrPriceNoOverlap),
		errors.Is(err, domain.ErrItemConstraintViolated),
		errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrBpsTooHigh),
		errors.Is(err, domain.ErrNoFeesToClaim):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrLockHeld):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

// parseListOpts extracts pagination and time-bound parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{Limit: limit, Offset: offset}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = &t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Until = &t
		}
	}
	return opts
}
