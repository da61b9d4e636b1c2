// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package services

import (
	"context"
	"fmt"
)

// IngestEngine matches the ingest engine's Start/Stop lifecycle.
type IngestEngine interface {
	Start(ctx context.Context) error
	Stop()
}

// IngestService wraps the ingest engine as a supervised service:
// Start spawns the engine's internal goroutines, Serve then blocks until
// the context is canceled, and Stop waits for them to drain.
type IngestService struct {
	engine IngestEngine
	name   string
}

// NewIngestService creates the wrapper.
func NewIngestService(engine IngestEngine) *IngestService {
	return &IngestService{
		engine: engine,
		name:   "ingest-engine",
	}
}

// Serve implements suture.Service. A Start failure is returned immediately
// so suture restarts the service under its backoff policy.
func (s *IngestService) Serve(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("ingest engine start failed: %w", err)
	}

	<-ctx.Done()

	s.engine.Stop()
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *IngestService) String() string {
	return s.name
}
