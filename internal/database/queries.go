// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/models"
)

// TopUsers returns the users with the most searches in the trailing window
// of `days`, ordered by count descending.
func (db *DB) TopUsers(ctx context.Context, days, limit int) ([]models.UserSearchCount, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT email_addr, COUNT(*) AS search_count
		FROM search_logs
		WHERE create_time >= NOW() - INTERVAL (?) DAY
		GROUP BY email_addr
		ORDER BY search_count DESC, email_addr
		LIMIT ?`, days, limit)
	if err != nil {
		return nil, fmt.Errorf("top users query failed: %w", err)
	}
	defer closeRowsQuietly(rows)

	results := make([]models.UserSearchCount, 0, limit)
	for rows.Next() {
		var u models.UserSearchCount
		if err := rows.Scan(&u.EmailAddr, &u.SearchCount); err != nil {
			return nil, fmt.Errorf("failed to scan top users row: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// UserActivity returns the individual searches of one user within the
// trailing window of `days`, newest first, paginated by limit/offset.
func (db *DB) UserActivity(ctx context.Context, email string, days, limit, offset int) ([]models.SearchLogRecord, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, create_time, email_addr, source, search_text, muse_query,
		       search_reason, description, is_admin, search_path
		FROM search_logs
		WHERE lower(email_addr) = lower(?)
		  AND create_time >= NOW() - INTERVAL (?) DAY
		ORDER BY create_time DESC
		LIMIT ? OFFSET ?`, email, days, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("user activity query failed: %w", err)
	}
	defer closeRowsQuietly(rows)

	return scanSearchLogs(rows)
}

// SearchesPerDay returns daily search counts for one calendar month.
func (db *DB) SearchesPerDay(ctx context.Context, year int, month time.Month) ([]models.DaySearchCount, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT strftime(create_time, '%Y-%m-%d') AS day, COUNT(*) AS search_count
		FROM search_logs
		WHERE create_time >= ? AND create_time < ?
		GROUP BY day
		ORDER BY day`, start, end)
	if err != nil {
		return nil, fmt.Errorf("searches per day query failed: %w", err)
	}
	defer closeRowsQuietly(rows)

	results := make([]models.DaySearchCount, 0, 31)
	for rows.Next() {
		var d models.DaySearchCount
		if err := rows.Scan(&d.Day, &d.SearchCount); err != nil {
			return nil, fmt.Errorf("failed to scan per-day row: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// SearchesByDay returns all searches on one UTC calendar day, newest first.
func (db *DB) SearchesByDay(ctx context.Context, day time.Time) ([]models.SearchLogRecord, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, create_time, email_addr, source, search_text, muse_query,
		       search_reason, description, is_admin, search_path
		FROM search_logs
		WHERE create_time >= ? AND create_time < ?
		ORDER BY create_time DESC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("searches by day query failed: %w", err)
	}
	defer closeRowsQuietly(rows)

	return scanSearchLogs(rows)
}

// Stats summarizes the store contents for the stats endpoint and health
// reporting.
func (db *DB) Stats(ctx context.Context) (models.StoreStats, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var stats models.StoreStats
	var oldest, newest sql.NullTime

	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT email_addr), MIN(create_time), MAX(create_time)
		FROM search_logs`).Scan(&stats.TotalRecords, &stats.UniqueUsers, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		stats.OldestRecord = &t
	}
	if newest.Valid {
		t := newest.Time.UTC()
		stats.NewestRecord = &t
	}
	return stats, nil
}

// scanSearchLogs drains rows into records.
func scanSearchLogs(rows *sql.Rows) ([]models.SearchLogRecord, error) {
	var results []models.SearchLogRecord
	for rows.Next() {
		var r models.SearchLogRecord
		var source, searchText, museQuery, searchReason, description, searchPath sql.NullString
		if err := rows.Scan(&r.ID, &r.CreateTime, &r.EmailAddr, &source, &searchText,
			&museQuery, &searchReason, &description, &r.IsAdmin, &searchPath); err != nil {
			return nil, fmt.Errorf("failed to scan search log row: %w", err)
		}
		r.CreateTime = r.CreateTime.UTC()
		r.Source = source.String
		r.SearchText = searchText.String
		r.MuseQuery = museQuery.String
		r.SearchReason = searchReason.String
		r.Description = description.String
		r.SearchPath = searchPath.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// closeRowsQuietly closes rows; scan loops already surface rows.Err().
func closeRowsQuietly(rows *sql.Rows) {
	if err := rows.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		logging.Warn().Err(err).Msg("Failed to close result rows")
	}
}
