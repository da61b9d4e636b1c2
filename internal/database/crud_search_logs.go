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
	"strconv"
	"time"

	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/models"
)

// Cursor state keys in the ingest_state table.
const (
	stateKeyLastPolledEnd = "last_polled_end_utc"
	stateKeyBootstrapDone = "bootstrap_done"
)

const insertSearchLogSQL = `
	INSERT INTO search_logs (
		id, create_time, email_addr, source, search_text, muse_query,
		search_reason, description, is_admin, search_path, raw_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

// CommitWindow persists a polled window atomically: all records are inserted
// (duplicates skipped) and the cursor is advanced to newCursor in one
// transaction. Returns the number of newly inserted records.
//
// The cursor must never advance without its records being durable, so the
// two writes share a transaction rather than being sequenced.
func (db *DB) CommitWindow(ctx context.Context, records []models.SearchLogRecord, newCursor models.CursorState) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	inserted, err := insertRecordsTx(ctx, tx, records)
	if err != nil {
		return 0, err
	}

	if err := setStateTx(ctx, tx, stateKeyLastPolledEnd, newCursor.LastPolledEnd.UTC().Format(time.RFC3339)); err != nil {
		return 0, err
	}
	if err := setStateTx(ctx, tx, stateKeyBootstrapDone, strconv.FormatBool(newCursor.BootstrapDone)); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit window: %w", err)
	}
	return inserted, nil
}

// insertRecordsTx inserts records inside tx, returning the count of rows
// actually written. Records whose stable ID already exists are skipped by
// the ON CONFLICT clause.
func insertRecordsTx(ctx context.Context, tx *sql.Tx, records []models.SearchLogRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertSearchLogSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeStmtQuietly(stmt)

	inserted := 0
	for i := range records {
		r := &records[i]
		id := r.ID
		if id == "" {
			id = r.StableID()
		}

		result, err := stmt.ExecContext(ctx,
			id, r.CreateTime.UTC(), r.EmailAddr, r.Source, r.SearchText,
			r.MuseQuery, r.SearchReason, r.Description, r.IsAdmin,
			r.SearchPath, r.RawJSON)
		if err != nil {
			return 0, fmt.Errorf("failed to insert record %s: %w", id, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if rows == 0 {
			logging.Debug().Str("id", id).Msg("Duplicate record skipped")
			continue
		}
		inserted++
	}
	return inserted, nil
}

// setStateTx upserts one ingest_state key inside tx.
func setStateTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ingest_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// LoadCursor reads the durable ingestion cursor. A store that has never
// committed a window returns the zero CursorState.
func (db *DB) LoadCursor(ctx context.Context) (models.CursorState, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var cursor models.CursorState

	var endStr string
	err := db.conn.QueryRowContext(ctx,
		"SELECT value FROM ingest_state WHERE key = ?", stateKeyLastPolledEnd).Scan(&endStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return cursor, nil
	case err != nil:
		return cursor, fmt.Errorf("failed to load cursor: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return cursor, fmt.Errorf("corrupt cursor value %q: %w", endStr, err)
	}
	cursor.LastPolledEnd = end.UTC()

	var doneStr string
	err = db.conn.QueryRowContext(ctx,
		"SELECT value FROM ingest_state WHERE key = ?", stateKeyBootstrapDone).Scan(&doneStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Cursor without a bootstrap flag means a partial legacy state;
		// treat bootstrap as incomplete so the engine finishes it.
	case err != nil:
		return cursor, fmt.Errorf("failed to load bootstrap flag: %w", err)
	default:
		cursor.BootstrapDone = doneStr == "true"
	}
	return cursor, nil
}

// ResetCursor clears both cursor keys in one transaction, forcing the engine
// back into a fresh backfill on its next cycle. Stored records are kept.
func (db *DB) ResetCursor(ctx context.Context) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM ingest_state WHERE key IN (?, ?)",
		stateKeyLastPolledEnd, stateKeyBootstrapDone); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cursor reset: %w", err)
	}
	logging.Info().Msg("Ingestion cursor reset")
	return nil
}

// rollbackQuietly rolls back tx, ignoring the error returned when the
// transaction already committed.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("Transaction rollback failed")
	}
}

// closeStmtQuietly closes stmt, logging rather than returning the error.
func closeStmtQuietly(stmt *sql.Stmt) {
	if err := stmt.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close prepared statement")
	}
}
