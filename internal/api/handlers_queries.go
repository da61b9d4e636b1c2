// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/searchvane/searchvane/internal/cache"
)

// Stats returns store-wide totals: record count, distinct users, time range.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	key := cache.GenerateKey("stats", nil)
	if data, ok := h.cacheGet(key); ok {
		respondSuccess(w, data, started, true)
		return
	}

	stats, err := h.db.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, errCodeDatabaseError, "Failed to query store statistics", err)
		return
	}

	h.cacheSet(key, stats)
	respondSuccess(w, stats, started, false)
}

// TopUsers returns the most active searchers over a trailing window.
func (h *Handler) TopUsers(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	days := h.queryInt(r, "days", h.config.API.DefaultDays, 3650)
	limit := h.queryInt(r, "limit", h.config.API.DefaultPageSize, h.config.API.MaxPageSize)

	key := cache.GenerateKey("top_users", map[string]int{"days": days, "limit": limit})
	if data, ok := h.cacheGet(key); ok {
		respondSuccess(w, data, started, true)
		return
	}

	users, err := h.db.TopUsers(r.Context(), days, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, errCodeDatabaseError, "Failed to query top users", err)
		return
	}

	h.cacheSet(key, users)
	respondSuccess(w, users, started, false)
}

// UserActivity returns one user's search history, newest first.
func (h *Handler) UserActivity(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	email := chi.URLParam(r, "email")
	if decoded, err := url.PathUnescape(email); err == nil {
		email = decoded
	}
	if email == "" {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, "Email address is required", nil)
		return
	}

	days := h.queryInt(r, "days", h.config.API.DefaultDays, 3650)
	limit := h.queryInt(r, "limit", h.config.API.DefaultPageSize, h.config.API.MaxPageSize)
	offset := h.queryInt(r, "offset", 0, 1<<30)

	records, err := h.db.UserActivity(r.Context(), email, days, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, errCodeDatabaseError, "Failed to query user activity", err)
		return
	}

	respondSuccess(w, records, started, false)
}

// SearchesPerDay returns daily search counts for one calendar month
// (?month=YYYY-MM, defaulting to the current month).
func (h *Handler) SearchesPerDay(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	now := time.Now().UTC()
	year, month := now.Year(), now.Month()
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, errCodeBadRequest, "Invalid month, expected YYYY-MM", nil)
			return
		}
		year, month = parsed.Year(), parsed.Month()
	}

	key := cache.GenerateKey("searches_per_day", map[string]int{"year": year, "month": int(month)})
	if data, ok := h.cacheGet(key); ok {
		respondSuccess(w, data, started, true)
		return
	}

	counts, err := h.db.SearchesPerDay(r.Context(), year, month)
	if err != nil {
		respondError(w, http.StatusInternalServerError, errCodeDatabaseError, "Failed to query daily counts", err)
		return
	}

	h.cacheSet(key, counts)
	respondSuccess(w, counts, started, false)
}

// SearchesByDay returns every search on one UTC day (?day=YYYY-MM-DD).
func (h *Handler) SearchesByDay(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	raw := r.URL.Query().Get("day")
	if raw == "" {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, "Missing day parameter, expected YYYY-MM-DD", nil)
		return
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, "Invalid day, expected YYYY-MM-DD", nil)
		return
	}

	records, err := h.db.SearchesByDay(r.Context(), day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, errCodeDatabaseError, "Failed to query searches by day", err)
		return
	}

	respondSuccess(w, records, started, false)
}

// queryInt parses a positive integer query parameter, clamped to max.
func (h *Handler) queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func (h *Handler) cacheGet(key string) (interface{}, bool) {
	if h.cache == nil {
		return nil, false
	}
	return h.cache.Get(key)
}

func (h *Handler) cacheSet(key string, value interface{}) {
	if h.cache != nil {
		h.cache.Set(key, value)
	}
}
