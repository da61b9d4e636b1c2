// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

// Package api provides the HTTP read surface and admin endpoints, routed
// with Chi.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/searchvane/searchvane/internal/auth"
	"github.com/searchvane/searchvane/internal/config"
	"github.com/searchvane/searchvane/internal/middleware"
)

// Router wires handlers, authentication and middleware into one http.Handler.
type Router struct {
	handler  *Handler
	authMw   *auth.Middleware
	security *config.SecurityConfig
}

// NewRouter creates a router over the given handler set.
func NewRouter(handler *Handler, authMw *auth.Middleware, security *config.SecurityConfig) *Router {
	return &Router{
		handler:  handler,
		authMw:   authMw,
		security: security,
	}
}

// chiAuth adapts the http.HandlerFunc-based auth middleware to Chi's shape.
func chiAuth(mw *auth.Middleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw.Authenticate(next.ServeHTTP)
	}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.security.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	// Health endpoints: permissive rate limit, no auth, so orchestrators
	// can probe freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Use(middleware.SecurityHeaders)
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Login: strict rate limit against brute force.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(5, 5*time.Minute))
		r.Post("/login", router.handler.Login)
	})

	// Read endpoints: authenticated, instrumented, rate limited per config.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.security.RateLimitReqs, router.security.RateLimitWindow))
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.PrometheusMetrics)
		r.Use(chiAuth(router.authMw))

		r.Get("/stats", router.handler.Stats)
		r.Get("/users/top", router.handler.TopUsers)
		r.Get("/users/{email}/activity", router.handler.UserActivity)
		r.Get("/searches/per-day", router.handler.SearchesPerDay)
		r.Get("/searches/by-day", router.handler.SearchesByDay)

		r.Get("/ingest/last-run", router.handler.LastRun)
		r.Post("/ingest/trigger", router.handler.TriggerIngest)
		r.Post("/admin/reset-cursor", router.handler.ResetCursor)
	})

	// Prometheus scrape endpoint, outside the auth surface.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
