// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

// Package models defines the core data structures shared across Searchvane:
// archive search-log records, ingestion cursor state, and API response
// envelopes.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SearchLogRecord is a single archive search audit event as returned by the
// remote archive search-log API, normalized for local storage.
type SearchLogRecord struct {
	// ID is the stable content-derived identifier. Empty until StableID is
	// called; the store computes it when absent.
	ID string `json:"id,omitempty"`

	CreateTime   time.Time `json:"createTime"`
	EmailAddr    string    `json:"emailAddr"`
	Source       string    `json:"source"`
	SearchText   string    `json:"searchText"`
	MuseQuery    string    `json:"museQuery"`
	SearchReason string    `json:"searchReason"`
	Description  string    `json:"description"`
	IsAdmin      bool      `json:"isAdmin"`
	SearchPath   string    `json:"searchPath"`

	// RawJSON preserves the original API payload for the record so audits can
	// recover fields the normalized schema does not carry.
	RawJSON string `json:"-"`
}

// StableID derives the deterministic identifier for a record: a SHA-256 digest
// over the identity tuple (lowercased email, create time, search text, muse
// query, search path). Two fetches of the same remote event always produce the
// same ID, which is what makes overlap re-fetching safe.
func (r *SearchLogRecord) StableID() string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(r.EmailAddr)))
	h.Write([]byte("|"))
	h.Write([]byte(r.CreateTime.UTC().Format(time.RFC3339)))
	h.Write([]byte("|"))
	h.Write([]byte(r.SearchText))
	h.Write([]byte("|"))
	h.Write([]byte(r.MuseQuery))
	h.Write([]byte("|"))
	h.Write([]byte(r.SearchPath))
	return hex.EncodeToString(h.Sum(nil))
}

// CursorState is the durable ingestion position. LastPolledEnd is the
// exclusive upper bound of the last committed window; BootstrapDone records
// whether the initial backfill has completed.
//
// The zero value means "never polled": the engine treats it as uninitialized
// and starts a backfill.
type CursorState struct {
	LastPolledEnd time.Time `json:"last_polled_end_utc"`
	BootstrapDone bool      `json:"bootstrap_done"`
}

// Initialized reports whether the cursor has ever been committed.
func (c CursorState) Initialized() bool {
	return !c.LastPolledEnd.IsZero()
}
