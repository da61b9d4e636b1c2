// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type mockHTTPServer struct {
	listenErr   error
	shutdownErr error
	listening   chan struct{}
	release     chan struct{}
	shutdowns   atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		listening: make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (m *mockHTTPServer) ListenAndServe() error {
	close(m.listening)
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.release
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.shutdowns.Add(1)
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	t.Parallel()

	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.listening
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("shutdowns = %d", server.shutdowns.Load())
	}
}

func TestHTTPServerServiceReportsListenFailure(t *testing.T) {
	t.Parallel()

	server := newMockHTTPServer()
	server.listenErr = fmt.Errorf("address already in use")
	svc := NewHTTPServerService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("err = %v", err)
	}
}

type mockEngine struct {
	startErr error
	started  atomic.Int32
	stopped  atomic.Int32
}

func (m *mockEngine) Start(ctx context.Context) error {
	m.started.Add(1)
	return m.startErr
}

func (m *mockEngine) Stop() {
	m.stopped.Add(1)
}

func TestIngestServiceLifecycle(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	svc := NewIngestService(engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Give Serve a moment to start the engine before canceling.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if engine.started.Load() != 1 || engine.stopped.Load() != 1 {
		t.Errorf("started = %d, stopped = %d", engine.started.Load(), engine.stopped.Load())
	}
}

func TestIngestServiceStartFailure(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{startErr: fmt.Errorf("cursor load failed")}
	svc := NewIngestService(engine)

	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("expected start failure to propagate")
	}
	if engine.stopped.Load() != 0 {
		t.Error("Stop must not be called when Start fails")
	}
}

func TestServiceNames(t *testing.T) {
	t.Parallel()

	if got := NewIngestService(&mockEngine{}).String(); got != "ingest-engine" {
		t.Errorf("name = %q", got)
	}
	if got := NewHTTPServerService(newMockHTTPServer(), 0).String(); got != "http-server" {
		t.Errorf("name = %q", got)
	}
}
