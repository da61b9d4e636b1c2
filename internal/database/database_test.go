// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package database

import (
	"context"
	"testing"
	"time"

	"github.com/searchvane/searchvane/internal/config"
	"github.com/searchvane/searchvane/internal/models"
)

// newTestDB opens an in-memory DuckDB store.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{
		Path:                   ":memory:",
		MaxMemory:              "256MB",
		Threads:                2,
		PreserveInsertionOrder: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func testRecord(email string, at time.Time, text string) models.SearchLogRecord {
	return models.SearchLogRecord{
		CreateTime: at,
		EmailAddr:  email,
		Source:     "archive",
		SearchText: text,
		MuseQuery:  "(" + text + ")",
		SearchPath: "/archive",
	}
}

func TestCommitWindowInsertsAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	records := []models.SearchLogRecord{
		testRecord("a@example.com", now.Add(-2*time.Hour), "alpha"),
		testRecord("b@example.com", now.Add(-time.Hour), "beta"),
	}
	cursor := models.CursorState{LastPolledEnd: now, BootstrapDone: true}

	inserted, err := db.CommitWindow(ctx, records, cursor)
	if err != nil {
		t.Fatalf("CommitWindow failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}

	loaded, err := db.LoadCursor(ctx)
	if err != nil {
		t.Fatalf("LoadCursor failed: %v", err)
	}
	if !loaded.LastPolledEnd.Equal(now) {
		t.Errorf("LastPolledEnd = %v, want %v", loaded.LastPolledEnd, now)
	}
	if !loaded.BootstrapDone {
		t.Error("BootstrapDone should be true")
	}
}

func TestCommitWindowSkipsDuplicates(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	batch := []models.SearchLogRecord{
		testRecord("a@example.com", now.Add(-3*time.Hour), "alpha"),
		testRecord("b@example.com", now.Add(-2*time.Hour), "beta"),
	}

	if _, err := db.CommitWindow(ctx, batch, models.CursorState{LastPolledEnd: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("first CommitWindow failed: %v", err)
	}

	// Re-fetch of the overlap window: same two records plus one new one.
	batch = append(batch, testRecord("c@example.com", now.Add(-time.Hour), "gamma"))
	inserted, err := db.CommitWindow(ctx, batch, models.CursorState{LastPolledEnd: now, BootstrapDone: true})
	if err != nil {
		t.Fatalf("second CommitWindow failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1 (two duplicates skipped)", inserted)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
}

func TestCommitWindowEmptyBatchStillAdvancesCursor(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	inserted, err := db.CommitWindow(ctx, nil, models.CursorState{LastPolledEnd: now, BootstrapDone: true})
	if err != nil {
		t.Fatalf("CommitWindow with empty batch failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0", inserted)
	}

	loaded, err := db.LoadCursor(ctx)
	if err != nil {
		t.Fatalf("LoadCursor failed: %v", err)
	}
	if !loaded.LastPolledEnd.Equal(now) {
		t.Errorf("empty window must still advance cursor: got %v, want %v", loaded.LastPolledEnd, now)
	}
}

func TestLoadCursorUninitialized(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	cursor, err := db.LoadCursor(context.Background())
	if err != nil {
		t.Fatalf("LoadCursor failed: %v", err)
	}
	if cursor.Initialized() {
		t.Error("fresh store should report uninitialized cursor")
	}
	if cursor.BootstrapDone {
		t.Error("fresh store should not report bootstrap done")
	}
}

func TestResetCursorClearsStateKeepsRecords(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	records := []models.SearchLogRecord{testRecord("a@example.com", now.Add(-time.Hour), "alpha")}
	if _, err := db.CommitWindow(ctx, records, models.CursorState{LastPolledEnd: now, BootstrapDone: true}); err != nil {
		t.Fatalf("CommitWindow failed: %v", err)
	}

	if err := db.ResetCursor(ctx); err != nil {
		t.Fatalf("ResetCursor failed: %v", err)
	}

	cursor, err := db.LoadCursor(ctx)
	if err != nil {
		t.Fatalf("LoadCursor failed: %v", err)
	}
	if cursor.Initialized() {
		t.Error("cursor should be cleared after reset")
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRecords != 1 {
		t.Errorf("records must survive a cursor reset: got %d", stats.TotalRecords)
	}
}

func TestTopUsersOrdering(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	records := []models.SearchLogRecord{
		testRecord("busy@example.com", now.Add(-1*time.Hour), "q1"),
		testRecord("busy@example.com", now.Add(-2*time.Hour), "q2"),
		testRecord("busy@example.com", now.Add(-3*time.Hour), "q3"),
		testRecord("quiet@example.com", now.Add(-4*time.Hour), "q4"),
		// Outside any 30-day window.
		testRecord("old@example.com", now.AddDate(0, 0, -60), "q5"),
	}
	if _, err := db.CommitWindow(ctx, records, models.CursorState{LastPolledEnd: now, BootstrapDone: true}); err != nil {
		t.Fatalf("CommitWindow failed: %v", err)
	}

	top, err := db.TopUsers(ctx, 30, 10)
	if err != nil {
		t.Fatalf("TopUsers failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].EmailAddr != "busy@example.com" || top[0].SearchCount != 3 {
		t.Errorf("top[0] = %+v, want busy@example.com with 3", top[0])
	}
	if top[1].EmailAddr != "quiet@example.com" || top[1].SearchCount != 1 {
		t.Errorf("top[1] = %+v, want quiet@example.com with 1", top[1])
	}
}

func TestUserActivityPaginationAndCase(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	var records []models.SearchLogRecord
	for i := 0; i < 5; i++ {
		records = append(records, testRecord("User@Example.com", now.Add(-time.Duration(i+1)*time.Hour), "q"+string(rune('a'+i))))
	}
	if _, err := db.CommitWindow(ctx, records, models.CursorState{LastPolledEnd: now, BootstrapDone: true}); err != nil {
		t.Fatalf("CommitWindow failed: %v", err)
	}

	page, err := db.UserActivity(ctx, "user@example.com", 30, 2, 0)
	if err != nil {
		t.Fatalf("UserActivity failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	// Newest first.
	if !page[0].CreateTime.After(page[1].CreateTime) {
		t.Error("activity should be ordered newest first")
	}

	rest, err := db.UserActivity(ctx, "user@example.com", 30, 10, 2)
	if err != nil {
		t.Fatalf("UserActivity offset failed: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("len(rest) = %d, want 3", len(rest))
	}
}

func TestSearchesPerDayMonthBoundaries(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	records := []models.SearchLogRecord{
		testRecord("a@example.com", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "first"),
		testRecord("a@example.com", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "second"),
		testRecord("a@example.com", time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC), "last"),
		testRecord("a@example.com", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), "next month"),
	}
	cursor := models.CursorState{LastPolledEnd: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), BootstrapDone: true}
	if _, err := db.CommitWindow(ctx, records, cursor); err != nil {
		t.Fatalf("CommitWindow failed: %v", err)
	}

	days, err := db.SearchesPerDay(ctx, 2026, time.March)
	if err != nil {
		t.Fatalf("SearchesPerDay failed: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("len(days) = %d, want 2", len(days))
	}
	if days[0].Day != "2026-03-01" || days[0].SearchCount != 2 {
		t.Errorf("days[0] = %+v", days[0])
	}
	if days[1].Day != "2026-03-31" || days[1].SearchCount != 1 {
		t.Errorf("days[1] = %+v", days[1])
	}
}

func TestSearchesByDay(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	records := []models.SearchLogRecord{
		testRecord("a@example.com", day.Add(9*time.Hour), "morning"),
		testRecord("b@example.com", day.Add(15*time.Hour), "afternoon"),
		testRecord("c@example.com", day.AddDate(0, 0, 1), "tomorrow"),
	}
	cursor := models.CursorState{LastPolledEnd: day.AddDate(0, 0, 2), BootstrapDone: true}
	if _, err := db.CommitWindow(ctx, records, cursor); err != nil {
		t.Fatalf("CommitWindow failed: %v", err)
	}

	logs, err := db.SearchesByDay(ctx, day)
	if err != nil {
		t.Fatalf("SearchesByDay failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len(logs) = %d, want 2", len(logs))
	}
	if logs[0].EmailAddr != "b@example.com" {
		t.Errorf("logs[0].EmailAddr = %q, want newest first", logs[0].EmailAddr)
	}
}

func TestStatsEmptyStore(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	stats, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRecords != 0 || stats.UniqueUsers != 0 {
		t.Errorf("empty store stats = %+v", stats)
	}
	if stats.OldestRecord != nil || stats.NewestRecord != nil {
		t.Error("empty store should have nil record bounds")
	}
}
