// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/searchvane/searchvane/internal/auth"
	"github.com/searchvane/searchvane/internal/cache"
	"github.com/searchvane/searchvane/internal/config"
	"github.com/searchvane/searchvane/internal/database"
	"github.com/searchvane/searchvane/internal/models"
)

// IngestEngine is the slice of the ingest engine the handlers need. The
// concrete engine satisfies it; tests substitute a stub.
type IngestEngine interface {
	State() string
	LastPollTime() time.Time
	Cursor() models.CursorState
	LastSummary() *models.IngestRunSummary
	TriggerPoll(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	db        *database.DB
	engine    IngestEngine
	config    *config.Config
	jwt       *auth.JWTManager
	basicAuth *auth.BasicAuthManager
	cache     *cache.Cache
	// archiveUp reports whether the archive API is currently reachable,
	// derived from the fetch client's circuit breaker. Nil means unknown.
	archiveUp func() bool
	startTime time.Time
	version   string
}

// NewHandler creates a handler. jwtManager and basicAuthManager may be nil
// depending on the configured auth mode; archiveUp may be nil.
func NewHandler(db *database.DB, engine IngestEngine, cfg *config.Config, jwtManager *auth.JWTManager, basicAuthManager *auth.BasicAuthManager, responseCache *cache.Cache, archiveUp func() bool, version string) *Handler {
	return &Handler{
		db:        db,
		engine:    engine,
		config:    cfg,
		jwt:       jwtManager,
		basicAuth: basicAuthManager,
		cache:     responseCache,
		archiveUp: archiveUp,
		startTime: time.Now(),
		version:   version,
	}
}

// Health reports overall service health: database connectivity, archive
// reachability and the ingest engine's lifecycle state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	archiveReachable := true
	if h.archiveUp != nil {
		archiveReachable = h.archiveUp()
	}

	status := "healthy"
	if !dbConnected {
		status = "unhealthy"
	} else if !archiveReachable {
		status = "degraded"
	}

	health := models.HealthStatus{
		Status:            status,
		Version:           h.version,
		DatabaseConnected: dbConnected,
		ArchiveReachable:  archiveReachable,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if h.engine != nil {
		health.IngestState = h.engine.State()
		if lastPoll := h.engine.LastPollTime(); !lastPoll.IsZero() {
			health.LastPollTime = &lastPoll
		}
		if cursor := h.engine.Cursor(); cursor.Initialized() {
			end := cursor.LastPolledEnd
			health.LastPolledEnd = &end
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, &models.APIResponse{
		Status: "success",
		Data:   health,
		Metadata: &models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	})
}

// HealthLive is the liveness probe: the process is up and serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]string{"status": "alive"},
	})
}

// HealthReady is the readiness probe: the database must answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil || h.db.Ping(r.Context()) != nil {
		respondError(w, http.StatusServiceUnavailable, errCodeServiceUnavailable, "Database not ready", nil)
		return
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]string{"status": "ready"},
	})
}
