// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

// Package main is the entry point for the Searchvane server.
//
// Searchvane continuously ingests archive search logs from the Mimecast
// API 2.0 into a local DuckDB store and serves them through a small
// authenticated read API for compliance auditing.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings from defaults, config.yaml and
//     environment variables (Koanf v2)
//  2. Database: DuckDB store with the search-log schema and durable cursor
//  3. Archive client: OAuth2 client-credentials auth, paginated fetch,
//     circuit breaker
//  4. Ingest engine: backfill/delta scheduler with crash-safe cursor commits
//  5. Authentication: JWT, Basic Auth, or no-auth mode
//  6. HTTP server: read API, ingest admin endpoints, Prometheus metrics
//
// Everything long-running is supervised by a suture tree: a crash loop in
// the ingest layer never takes down the read API.
//
// # Configuration
//
// Required settings for ingest:
//   - MC_BASE_URL: archive API root (e.g. https://api.services.mimecast.com)
//   - MC_CLIENT_ID / MC_CLIENT_SECRET: OAuth2 client credentials
//
// For JWT authentication:
//   - JWT_SECRET: 32+ character secret for token signing
//   - ADMIN_USERNAME / ADMIN_PASSWORD: login credentials
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: in-flight HTTP
// requests drain, a running poll cycle finishes or aborts at its next
// context check, and the database checkpoints before close. An interrupted
// cycle leaves the cursor untouched, so the next start simply re-fetches
// the same window and deduplicates.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/searchvane/searchvane/internal/api"
	"github.com/searchvane/searchvane/internal/auth"
	"github.com/searchvane/searchvane/internal/cache"
	"github.com/searchvane/searchvane/internal/config"
	"github.com/searchvane/searchvane/internal/database"
	"github.com/searchvane/searchvane/internal/ingest"
	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/supervisor"
	"github.com/searchvane/searchvane/internal/supervisor/services"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("archive_url", cfg.Archive.BaseURL).
		Str("db_path", cfg.Database.Path).
		Str("auth_mode", cfg.Security.AuthMode).
		Dur("poll_interval", cfg.Ingest.Interval).
		Int("backfill_days", cfg.Ingest.BackfillDays).
		Msg("Starting Searchvane")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	// Archive client: OAuth2 credentials -> paginated fetcher -> breaker.
	credentials := ingest.NewOAuth2Provider(cfg.Archive.BaseURL, cfg.Archive.ClientID, cfg.Archive.ClientSecret, cfg.Archive.Timeout)
	client := ingest.NewClient(ingest.ClientConfig{
		BaseURL:           cfg.Archive.BaseURL,
		Timeout:           cfg.Archive.Timeout,
		PageSize:          cfg.Ingest.PageSize,
		RetryAttempts:     cfg.Ingest.RetryAttempts,
		RetryDelay:        cfg.Ingest.RetryDelay,
		RequestsPerSecond: cfg.Archive.RequestsPerSecond,
	}, credentials)
	fetcher := ingest.NewBreakerFetcher(client)

	engine := ingest.NewEngine(db, fetcher, &cfg.Ingest)

	jwtManager, basicAuthManager := setupAuth(cfg)
	authMw := auth.NewMiddleware(jwtManager, basicAuthManager, cfg.Security.AuthMode)

	responseCache := cache.New(cfg.API.CacheTTL)
	archiveUp := func() bool { return fetcher.State() != gobreaker.StateOpen }
	handler := api.NewHandler(db, engine, cfg, jwtManager, basicAuthManager, responseCache, archiveUp, version)
	router := api.NewRouter(handler, authMw, &cfg.Security)

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(services.NewIngestService(engine))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Searchvane stopped gracefully")
}

// setupAuth constructs the token and credential managers the configured
// auth mode needs. Config validation has already checked the prerequisites
// for each mode.
func setupAuth(cfg *config.Config) (*auth.JWTManager, *auth.BasicAuthManager) {
	switch cfg.Security.AuthMode {
	case "jwt":
		jwtManager, err := auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		// The login endpoint verifies credentials through the basic auth
		// manager even in jwt mode.
		basicAuthManager, err := auth.NewBasicAuthManager(cfg.Security.AdminUsername, cfg.Security.AdminPassword)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize credential store")
		}
		return jwtManager, basicAuthManager

	case "basic":
		basicAuthManager, err := auth.NewBasicAuthManager(cfg.Security.AdminUsername, cfg.Security.AdminPassword)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize basic auth")
		}
		return nil, basicAuthManager

	default:
		logging.Warn().Msg("Authentication disabled (AUTH_MODE=none), API is open")
		return nil, nil
	}
}
