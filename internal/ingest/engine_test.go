// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/searchvane/searchvane/internal/config"
	"github.com/searchvane/searchvane/internal/models"
)

// mockStore is an in-memory Store that mimics the real store's dedup and
// atomic commit semantics.
type mockStore struct {
	cursor    models.CursorState
	records   map[string]models.SearchLogRecord
	loadErr   error
	commitErr error
	commits   int
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]models.SearchLogRecord)}
}

func (s *mockStore) LoadCursor(_ context.Context) (models.CursorState, error) {
	if s.loadErr != nil {
		return models.CursorState{}, s.loadErr
	}
	return s.cursor, nil
}

func (s *mockStore) CommitWindow(_ context.Context, records []models.SearchLogRecord, newCursor models.CursorState) (int, error) {
	if s.commitErr != nil {
		return 0, s.commitErr
	}
	inserted := 0
	for i := range records {
		id := records[i].ID
		if id == "" {
			id = records[i].StableID()
		}
		if _, exists := s.records[id]; exists {
			continue
		}
		s.records[id] = records[i]
		inserted++
	}
	s.cursor = newCursor
	s.commits++
	return inserted, nil
}

func (s *mockStore) ResetCursor(_ context.Context) error {
	s.cursor = models.CursorState{}
	return nil
}

// mockFetcher records the windows it was asked for and returns canned
// responses per call.
type mockFetcher struct {
	calls   []fetchCall
	results []fetchResult
}

type fetchCall struct {
	start, end time.Time
}

type fetchResult struct {
	records []models.SearchLogRecord
	err     error
}

func (f *mockFetcher) FetchWindow(_ context.Context, start, end time.Time) ([]models.SearchLogRecord, error) {
	f.calls = append(f.calls, fetchCall{start: start, end: end})
	if len(f.results) == 0 {
		return nil, nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result.records, result.err
}

func testIngestConfig() *config.IngestConfig {
	return &config.IngestConfig{
		Interval:      time.Hour,
		BackfillDays:  1,
		Overlap:       time.Hour,
		PageSize:      100,
		RetryAttempts: 3,
		RetryDelay:    10 * time.Millisecond,
	}
}

func fixedNowEngine(store Store, fetcher Fetcher, cfg *config.IngestConfig, now time.Time) *Engine {
	e := NewEngine(store, fetcher, cfg)
	e.now = func() time.Time { return now }
	return e
}

func record(email string, at time.Time, text string) models.SearchLogRecord {
	r := models.SearchLogRecord{CreateTime: at, EmailAddr: email, SearchText: text}
	r.ID = r.StableID()
	return r
}

func TestBackfillWindowMath(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	fetcher := &mockFetcher{}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("backfill cycle failed: %v", err)
	}

	if len(fetcher.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(fetcher.calls))
	}
	wantStart := now.AddDate(0, 0, -1)
	wantEnd := now.Add(-time.Hour)
	if !fetcher.calls[0].start.Equal(wantStart) {
		t.Errorf("backfill start = %v, want %v", fetcher.calls[0].start, wantStart)
	}
	if !fetcher.calls[0].end.Equal(wantEnd) {
		t.Errorf("backfill end = %v, want %v", fetcher.calls[0].end, wantEnd)
	}

	if !store.cursor.BootstrapDone {
		t.Error("bootstrap flag should be set after backfill")
	}
	if !store.cursor.LastPolledEnd.Equal(wantEnd) {
		t.Errorf("cursor = %v, want window end %v", store.cursor.LastPolledEnd, wantEnd)
	}
	if e.State() != StateSteadyPolling {
		t.Errorf("state = %q, want %q", e.State(), StateSteadyPolling)
	}
}

func TestDeltaWindowStartsAtCursorMinusOverlap(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cursorEnd := now.Add(-2 * time.Hour)
	store := newMockStore()
	store.cursor = models.CursorState{LastPolledEnd: cursorEnd, BootstrapDone: true}
	fetcher := &mockFetcher{}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("delta cycle failed: %v", err)
	}

	if len(fetcher.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(fetcher.calls))
	}
	wantStart := cursorEnd.Add(-time.Hour)
	if !fetcher.calls[0].start.Equal(wantStart) {
		t.Errorf("delta start = %v, want cursor minus overlap %v", fetcher.calls[0].start, wantStart)
	}
	if !fetcher.calls[0].end.Equal(now) {
		t.Errorf("delta end = %v, want now %v", fetcher.calls[0].end, now)
	}
	if !store.cursor.LastPolledEnd.Equal(now) {
		t.Errorf("cursor = %v, want %v", store.cursor.LastPolledEnd, now)
	}
}

func TestFailedFetchLeavesCursorUntouched(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	before := models.CursorState{LastPolledEnd: now.Add(-3 * time.Hour), BootstrapDone: true}
	store := newMockStore()
	store.cursor = before
	fetcher := &mockFetcher{results: []fetchResult{{err: &FetchError{Err: errors.New("remote down")}}}}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	err := e.TriggerPoll(context.Background())
	if err == nil {
		t.Fatal("expected cycle failure")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("error should be a FetchError, got %T", err)
	}
	if store.cursor != before {
		t.Errorf("cursor changed on failed cycle: %+v", store.cursor)
	}
	if store.commits != 0 {
		t.Errorf("commits = %d, want 0", store.commits)
	}
}

func TestFailedCommitLeavesCursorUntouched(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	store.commitErr = errors.New("disk full")
	fetcher := &mockFetcher{results: []fetchResult{{records: []models.SearchLogRecord{record("a@example.com", now.Add(-2*time.Hour), "q")}}}}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	err := e.TriggerPoll(context.Background())
	if err == nil {
		t.Fatal("expected cycle failure")
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Errorf("error should be a StoreError, got %T", err)
	}
	if store.cursor.Initialized() {
		t.Error("cursor must stay unset after failed commit")
	}
}

func TestFailedCycleRetriesSameWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	fetcher := &mockFetcher{results: []fetchResult{
		{err: &FetchError{Err: errors.New("transient")}},
		{},
	}}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	if err := e.TriggerPoll(context.Background()); err == nil {
		t.Fatal("first cycle should fail")
	}
	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	if len(fetcher.calls) != 2 {
		t.Fatalf("fetch calls = %d, want 2", len(fetcher.calls))
	}
	if fetcher.calls[0] != fetcher.calls[1] {
		t.Errorf("retry window %+v differs from failed window %+v", fetcher.calls[1], fetcher.calls[0])
	}
}

func TestResetReentersBackfill(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	store.cursor = models.CursorState{LastPolledEnd: now.Add(-time.Hour), BootstrapDone: true}
	fetcher := &mockFetcher{}
	cfg := testIngestConfig()
	e := fixedNowEngine(store, fetcher, cfg, now)

	if err := e.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if e.State() != StateUninitialized {
		t.Errorf("state after reset = %q, want %q", e.State(), StateUninitialized)
	}

	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("post-reset cycle failed: %v", err)
	}
	wantStart := now.AddDate(0, 0, -cfg.BackfillDays)
	if !fetcher.calls[0].start.Equal(wantStart) {
		t.Errorf("post-reset cycle start = %v, want backfill start %v", fetcher.calls[0].start, wantStart)
	}
}

// End-to-end dedup scenario: a backfill delivering 10 records followed by a
// delta cycle re-delivering 5 of them plus 2 new ones must leave 12 rows.
func TestOverlapRedeliveryIsDeduplicated(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	windowStart := now.AddDate(0, 0, -1)

	var backfillBatch []models.SearchLogRecord
	for i := 0; i < 5; i++ {
		backfillBatch = append(backfillBatch, record(fmt.Sprintf("u%d@example.com", i), windowStart.Add(10*time.Minute), "early"))
	}
	var lateBatch []models.SearchLogRecord
	for i := 0; i < 5; i++ {
		lateBatch = append(lateBatch, record(fmt.Sprintf("u%d@example.com", i), windowStart.Add(50*time.Minute), "late"))
	}
	backfillBatch = append(backfillBatch, lateBatch...)

	deltaBatch := append([]models.SearchLogRecord{}, lateBatch...)
	deltaBatch = append(deltaBatch,
		record("new1@example.com", now.Add(-30*time.Minute), "fresh"),
		record("new2@example.com", now.Add(-20*time.Minute), "fresh"))

	store := newMockStore()
	fetcher := &mockFetcher{results: []fetchResult{
		{records: backfillBatch},
		{records: deltaBatch},
	}}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("backfill cycle failed: %v", err)
	}
	if len(store.records) != 10 {
		t.Fatalf("records after backfill = %d, want 10", len(store.records))
	}

	e.now = func() time.Time { return now.Add(time.Hour) }
	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("delta cycle failed: %v", err)
	}
	if len(store.records) != 12 {
		t.Errorf("records after delta = %d, want 12 (5 duplicates suppressed)", len(store.records))
	}

	summary := e.LastSummary()
	if summary == nil {
		t.Fatal("expected a run summary")
	}
	if summary.Fetched != 7 || summary.Inserted != 2 || summary.Duplicates != 5 {
		t.Errorf("summary = %+v, want fetched 7 / inserted 2 / duplicates 5", summary)
	}
}

func TestCursorNeverDecreases(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	fetcher := &mockFetcher{}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	var previous time.Time
	for i := 0; i < 5; i++ {
		current := now.Add(time.Duration(i) * time.Hour)
		e.now = func() time.Time { return current }
		if err := e.TriggerPoll(context.Background()); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
		if store.cursor.LastPolledEnd.Before(previous) {
			t.Fatalf("cursor went backwards: %v < %v", store.cursor.LastPolledEnd, previous)
		}
		previous = store.cursor.LastPolledEnd
	}
}

func TestClockBehindCursorSkipsCycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	// Cursor well ahead of the (skewed) clock.
	before := models.CursorState{LastPolledEnd: now.Add(6 * time.Hour), BootstrapDone: true}
	store.cursor = before
	fetcher := &mockFetcher{}
	e := fixedNowEngine(store, fetcher, testIngestConfig(), now)

	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("skipped cycle should not error: %v", err)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("fetch calls = %d, want 0", len(fetcher.calls))
	}
	if store.cursor != before {
		t.Errorf("cursor changed on skipped cycle: %+v", store.cursor)
	}
}

// slowFetcher takes a fixed delay per window and fails fast if the cycle
// context is cancelled underneath it.
type slowFetcher struct {
	delay   time.Duration
	records []models.SearchLogRecord
}

func (f *slowFetcher) FetchWindow(ctx context.Context, _, _ time.Time) ([]models.SearchLogRecord, error) {
	select {
	case <-time.After(f.delay):
		return f.records, nil
	case <-ctx.Done():
		return nil, &FetchError{Err: ctx.Err()}
	}
}

func TestCycleOutlastsPollInterval(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	cfg := testIngestConfig()
	cfg.Interval = 20 * time.Millisecond
	fetcher := &slowFetcher{
		delay:   5 * cfg.Interval,
		records: []models.SearchLogRecord{record("a@corp.example", now.Add(-2*time.Hour), "invoice")},
	}
	e := fixedNowEngine(store, fetcher, cfg, now)

	// A backfill slower than the poll interval must still run to completion.
	if err := e.TriggerPoll(context.Background()); err != nil {
		t.Fatalf("slow cycle failed: %v", err)
	}
	if !store.cursor.BootstrapDone {
		t.Error("bootstrap not marked done after slow cycle")
	}
	if len(store.records) != 1 {
		t.Errorf("stored records = %d, want 1", len(store.records))
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	fetcher := &mockFetcher{}
	cfg := testIngestConfig()
	cfg.PollOnStart = false
	e := NewEngine(store, fetcher, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Stop()
	// Stop must be idempotent.
	e.Stop()
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{&AuthError{Err: errors.New("bad creds")}, "auth"},
		{&FetchError{Err: errors.New("timeout")}, "fetch"},
		{&StoreError{Err: errors.New("disk")}, "store"},
		{fmt.Errorf("wrapped: %w", &AuthError{Err: errors.New("x")}), "auth"},
		{errors.New("mystery"), "other"},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	authErr := &AuthError{Err: errors.New("invalid client")}
	if !strings.Contains(authErr.Error(), "authentication") {
		t.Errorf("AuthError message = %q", authErr.Error())
	}
	fetchErr := &FetchError{Err: errors.New("boom"), StatusCode: 502}
	if !strings.Contains(fetchErr.Error(), "502") {
		t.Errorf("FetchError message should carry status: %q", fetchErr.Error())
	}
	if !errors.Is(fetchErr, fetchErr.Err) {
		t.Error("FetchError should unwrap to its cause")
	}
}
