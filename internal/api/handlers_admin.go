// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/searchvane/searchvane/internal/ingest"
	"github.com/searchvane/searchvane/internal/logging"
)

// maxLoginBodySize bounds the login request body.
const maxLoginBodySize = 4 * 1024

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges admin credentials for a session token. Only available in
// jwt auth mode.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if h.jwt == nil || h.basicAuth == nil {
		respondError(w, http.StatusNotFound, errCodeNotFound, "Login is not enabled", nil)
		return
	}

	var req loginRequest
	body := io.LimitReader(r.Body, maxLoginBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.basicAuth.VerifyPassword(req.Username, req.Password); err != nil {
		logging.Warn().Str("username", req.Username).Msg("Login failed")
		respondError(w, http.StatusUnauthorized, errCodeUnauthorized, "Invalid username or password", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, "admin")
	if err != nil {
		respondError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to issue token", err)
		return
	}

	respondSuccess(w, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.config.Security.SessionTimeout).UTC(),
	}, started, false)
}

// TriggerIngest runs one poll cycle immediately and reports its outcome.
func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, errCodeServiceUnavailable, "Ingest engine not running", nil)
		return
	}

	if err := h.engine.TriggerPoll(r.Context()); err != nil {
		status := http.StatusBadGateway
		var storeErr *ingest.StoreError
		if errors.As(err, &storeErr) {
			status = http.StatusInternalServerError
		}
		respondError(w, status, errCodeIngestError, "Poll cycle failed", err)
		return
	}

	if h.cache != nil {
		h.cache.Clear()
	}
	respondSuccess(w, h.engine.LastSummary(), started, false)
}

// ResetCursor clears the durable ingest cursor. The next cycle performs a
// full backfill; existing records are kept and deduplicate the re-run.
func (h *Handler) ResetCursor(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, errCodeServiceUnavailable, "Ingest engine not running", nil)
		return
	}

	if err := h.engine.Reset(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, errCodeIngestError, "Failed to reset cursor", err)
		return
	}

	logging.Info().Msg("Ingest cursor reset, next cycle will backfill")
	respondSuccess(w, map[string]string{"status": "cursor reset"}, started, false)
}

// LastRun reports the most recent completed poll cycle.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, errCodeServiceUnavailable, "Ingest engine not running", nil)
		return
	}

	summary := h.engine.LastSummary()
	if summary == nil {
		respondError(w, http.StatusNotFound, errCodeNotFound, "No completed poll cycle yet", nil)
		return
	}
	respondSuccess(w, summary, started, false)
}
