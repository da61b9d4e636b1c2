// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/models"
)

// Error codes for API responses.
const (
	errCodeBadRequest         = "BAD_REQUEST"
	errCodeUnauthorized       = "UNAUTHORIZED"
	errCodeNotFound           = "NOT_FOUND"
	errCodeInternalError      = "INTERNAL_ERROR"
	errCodeDatabaseError      = "DATABASE_ERROR"
	errCodeIngestError        = "INGEST_ERROR"
	errCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondJSON writes the standard response envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps data in a success envelope with timing metadata.
func respondSuccess(w http.ResponseWriter, data interface{}, started time.Time, cached bool) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: &models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: float64(time.Since(started).Microseconds()) / 1000.0,
			Cached:      cached,
		},
	})
}

// respondError writes an error envelope, logging the underlying error when
// one is attached.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("API error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: &models.Metadata{
			Timestamp: time.Now().UTC(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}
