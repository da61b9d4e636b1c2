// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package models

import "time"

// APIResponse is the standard JSON envelope for all API endpoints.
type APIResponse struct {
	Status   string      `json:"status"` // "success" or "error"
	Data     interface{} `json:"data,omitempty"`
	Metadata *Metadata   `json:"metadata,omitempty"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing and caching information.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS float64   `json:"query_time_ms"`
	Cached      bool      `json:"cached"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthStatus is the payload of the /health endpoint.
type HealthStatus struct {
	Status            string     `json:"status"` // "healthy", "degraded", "unhealthy"
	Version           string     `json:"version"`
	DatabaseConnected bool       `json:"database_connected"`
	ArchiveReachable  bool       `json:"archive_reachable"`
	IngestState       string     `json:"ingest_state"`
	LastPollTime      *time.Time `json:"last_poll_time,omitempty"`
	LastPolledEnd     *time.Time `json:"last_polled_end,omitempty"`
	Uptime            float64    `json:"uptime_seconds"`
}

// UserSearchCount is one row of the top-users aggregate.
type UserSearchCount struct {
	EmailAddr   string `json:"email_addr"`
	SearchCount int64  `json:"search_count"`
}

// DaySearchCount is one row of the searches-per-day aggregate.
type DaySearchCount struct {
	Day         string `json:"day"` // YYYY-MM-DD
	SearchCount int64  `json:"search_count"`
}

// StoreStats summarizes the contents of the local store.
type StoreStats struct {
	TotalRecords int64      `json:"total_records"`
	UniqueUsers  int64      `json:"unique_users"`
	OldestRecord *time.Time `json:"oldest_record,omitempty"`
	NewestRecord *time.Time `json:"newest_record,omitempty"`
}

// IngestRunSummary reports the outcome of one completed poll cycle.
type IngestRunSummary struct {
	RunID       string    `json:"run_id"`
	Phase       string    `json:"phase"` // "backfill" or "delta"
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Fetched     int       `json:"fetched"`
	Inserted    int       `json:"inserted"`
	Duplicates  int       `json:"duplicates"`
	Duration    float64   `json:"duration_seconds"`
}
