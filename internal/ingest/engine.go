// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

// Package ingest implements the archive search-log ingestion engine: a
// scheduled poller that fetches windows of records from the remote archive
// API and commits them, together with the advancing cursor, into the local
// store.
//
// The engine is a small state machine driven entirely by the durable cursor:
//
//   - no cursor            -> initial backfill of the configured history
//   - cursor, no bootstrap -> the backfill never committed; run it again
//   - cursor, bootstrap    -> steady delta polling with an overlap window
//
// Every failed cycle leaves the cursor untouched, so crashes and outages
// are recovered by simply re-running the same window; the store's
// idempotent insert absorbs whatever was re-fetched.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/searchvane/searchvane/internal/config"
	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/metrics"
	"github.com/searchvane/searchvane/internal/models"
)

// Engine states as reported by State().
const (
	StateUninitialized = "uninitialized"
	StateBackfilling   = "backfilling"
	StateSteadyPolling = "steady_polling"
)

// Cycle phases, used in logs and metrics labels.
const (
	phaseBackfill = "backfill"
	phaseDelta    = "delta"
)

// Store is the persistence surface the engine needs.
type Store interface {
	LoadCursor(ctx context.Context) (models.CursorState, error)
	CommitWindow(ctx context.Context, records []models.SearchLogRecord, newCursor models.CursorState) (int, error)
	ResetCursor(ctx context.Context) error
}

// Engine schedules and executes poll cycles.
type Engine struct {
	store   Store
	fetcher Fetcher
	cfg     *config.IngestConfig

	// now is swappable for tests.
	now func() time.Time

	// cycleMu serializes poll cycles: the ticker loop, the startup poll and
	// manual triggers never run concurrently.
	cycleMu sync.Mutex

	// mu guards the observable snapshot below.
	mu          sync.RWMutex
	cursor      models.CursorState
	lastPoll    time.Time
	lastSummary *models.IngestRunSummary

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates an ingestion engine.
func NewEngine(store Store, fetcher Fetcher, cfg *config.IngestConfig) *Engine {
	return &Engine{
		store:    store,
		fetcher:  fetcher,
		cfg:      cfg,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start loads the cursor and launches the poll loop. The provided context
// bounds all background work; cancel it (or call Stop) to halt polling.
func (e *Engine) Start(ctx context.Context) error {
	cursor, err := e.store.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ingestion cursor: %w", err)
	}
	e.mu.Lock()
	e.cursor = cursor
	e.mu.Unlock()

	logging.Info().
		Str("state", e.State()).
		Time("last_polled_end", cursor.LastPolledEnd).
		Dur("interval", e.cfg.Interval).
		Msg("Ingestion engine starting")

	if e.cfg.PollOnStart {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.runCycle(ctx); err != nil {
				logging.Error().Err(err).Msg("Startup poll cycle failed")
			}
		}()
	}

	e.wg.Add(1)
	go e.pollLoop(ctx)
	return nil
}

// Stop halts the poll loop and waits for any in-flight cycle to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
	logging.Info().Msg("Ingestion engine stopped")
}

// pollLoop runs cycles on the configured interval until stopped.
func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.runCycle(ctx); err != nil {
				logging.Error().Err(err).Msg("Scheduled poll cycle failed")
			}
		}
	}
}

// TriggerPoll runs one cycle immediately, serialized against scheduled
// cycles. It blocks until the cycle completes and returns its error.
func (e *Engine) TriggerPoll(ctx context.Context) error {
	logging.Info().Msg("Manual poll triggered")
	return e.runCycle(ctx)
}

// Reset clears the durable cursor; the next cycle starts a fresh backfill.
// Stored records are kept, so the re-run deduplicates against them.
func (e *Engine) Reset(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if err := e.store.ResetCursor(ctx); err != nil {
		return &StoreError{Err: err}
	}
	e.mu.Lock()
	e.cursor = models.CursorState{}
	e.mu.Unlock()
	return nil
}

// runCycle executes one poll cycle under cycleMu. A cycle runs to completion
// or failure; it is never cut short by the scheduling interval, so a slow
// backfill simply causes the overlapping ticks to wait their turn. Only the
// caller's context bounds it.
func (e *Engine) runCycle(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	started := time.Now()
	summary, err := e.pollOnce(ctx)
	if err != nil {
		errType := classifyError(err)
		metrics.RecordCycle("", 0, 0, 0, 0, err, errType)
		logging.Error().
			Err(err).
			Str("error_type", errType).
			Dur("duration", time.Since(started)).
			Msg("Poll cycle failed, cursor unchanged")
		return err
	}
	if summary == nil {
		// Nothing to do this cycle (clock skew guard).
		return nil
	}

	summary.Duration = time.Since(started).Seconds()
	metrics.RecordCycle(summary.Phase, time.Since(started), summary.Fetched, summary.Inserted, summary.Duplicates, nil, "")

	e.mu.Lock()
	e.lastPoll = time.Now().UTC()
	e.lastSummary = summary
	e.mu.Unlock()

	logging.Info().
		Str("run_id", summary.RunID).
		Str("phase", summary.Phase).
		Time("window_start", summary.WindowStart).
		Time("window_end", summary.WindowEnd).
		Int("fetched", summary.Fetched).
		Int("inserted", summary.Inserted).
		Int("duplicates", summary.Duplicates).
		Dur("duration", time.Since(started)).
		Msg("Poll cycle complete")
	return nil
}

// pollOnce computes the window for the current cursor state, fetches it and
// commits it. Returns nil, nil when the cycle was skipped.
func (e *Engine) pollOnce(ctx context.Context) (*models.IngestRunSummary, error) {
	cursor, err := e.store.LoadCursor(ctx)
	if err != nil {
		return nil, &StoreError{Err: err}
	}

	now := e.now().UTC()
	phase, start, end := e.computeWindow(cursor, now)

	if !end.After(start) {
		logging.Warn().
			Time("window_start", start).
			Time("window_end", end).
			Msg("Empty poll window, skipping cycle")
		return nil, nil
	}
	if end.Before(cursor.LastPolledEnd) {
		// A backwards clock would otherwise shrink the cursor. Skip and
		// let a later cycle catch up.
		logging.Warn().
			Time("now", now).
			Time("last_polled_end", cursor.LastPolledEnd).
			Msg("Clock earlier than cursor, skipping cycle")
		return nil, nil
	}

	runID := uuid.NewString()
	logging.Debug().
		Str("run_id", runID).
		Str("phase", phase).
		Time("window_start", start).
		Time("window_end", end).
		Msg("Fetching window")

	records, err := e.fetcher.FetchWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}

	newCursor := models.CursorState{LastPolledEnd: end, BootstrapDone: true}
	inserted, err := e.store.CommitWindow(ctx, records, newCursor)
	if err != nil {
		return nil, &StoreError{Err: err}
	}

	e.mu.Lock()
	e.cursor = newCursor
	e.mu.Unlock()
	metrics.IngestCursorEnd.Set(float64(end.Unix()))

	return &models.IngestRunSummary{
		RunID:       runID,
		Phase:       phase,
		WindowStart: start,
		WindowEnd:   end,
		Fetched:     len(records),
		Inserted:    inserted,
		Duplicates:  len(records) - inserted,
	}, nil
}

// computeWindow derives the cycle phase and half-open fetch window [start,
// end) from the cursor.
//
// Backfill covers [now - backfill_days, now - overlap); a failed backfill
// has no representable partial state and is retried verbatim. Delta covers
// [last_polled_end - overlap, now): the overlap slice is re-fetched every
// cycle so records the remote API indexed late are still captured, and the
// store's dedup makes the re-fetch free.
func (e *Engine) computeWindow(cursor models.CursorState, now time.Time) (phase string, start, end time.Time) {
	if !cursor.Initialized() || !cursor.BootstrapDone {
		return phaseBackfill, now.AddDate(0, 0, -e.cfg.BackfillDays), now.Add(-e.cfg.Overlap)
	}
	return phaseDelta, cursor.LastPolledEnd.Add(-e.cfg.Overlap), now
}

// State reports the engine's lifecycle state derived from the cursor.
func (e *Engine) State() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case !e.cursor.Initialized():
		return StateUninitialized
	case !e.cursor.BootstrapDone:
		return StateBackfilling
	default:
		return StateSteadyPolling
	}
}

// LastPollTime returns when the last successful cycle finished (zero when
// none has).
func (e *Engine) LastPollTime() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPoll
}

// Cursor returns the engine's view of the durable cursor.
func (e *Engine) Cursor() models.CursorState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cursor
}

// LastSummary returns the outcome of the most recent successful cycle, or
// nil when none has completed.
func (e *Engine) LastSummary() *models.IngestRunSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastSummary == nil {
		return nil
	}
	s := *e.lastSummary
	return &s
}
