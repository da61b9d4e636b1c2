// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

// Package metrics defines Prometheus collectors for ingestion, the archive
// API client, and the HTTP API. Collectors are registered with the default
// registry via promauto and exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestCycleDuration tracks how long ingest cycles take, labeled by
	// phase (backfill, delta).
	IngestCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "searchvane",
		Subsystem: "ingest",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of ingest cycles in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"phase"})

	// IngestRecordsFetched counts records returned by the archive API.
	IngestRecordsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "searchvane",
		Subsystem: "ingest",
		Name:      "records_fetched_total",
		Help:      "Total records fetched from the archive search-log API",
	})

	// IngestRecordsInserted counts records newly inserted into the store.
	IngestRecordsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "searchvane",
		Subsystem: "ingest",
		Name:      "records_inserted_total",
		Help:      "Total records inserted into the local store",
	})

	// IngestDuplicatesSkipped counts fetched records already present locally,
	// mostly from the overlap window re-fetch.
	IngestDuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "searchvane",
		Subsystem: "ingest",
		Name:      "duplicates_skipped_total",
		Help:      "Total fetched records skipped as duplicates",
	})

	// IngestErrors counts failed cycles by error class.
	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchvane",
		Subsystem: "ingest",
		Name:      "errors_total",
		Help:      "Total ingest cycle failures by error type",
	}, []string{"error_type"})

	// IngestLastSuccess records the unix time of the last successful cycle.
	IngestLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "searchvane",
		Subsystem: "ingest",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful ingest cycle",
	})

	// IngestCursorEnd records the unix time of the durable cursor.
	IngestCursorEnd = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "searchvane",
		Subsystem: "ingest",
		Name:      "cursor_end_timestamp_seconds",
		Help:      "Unix timestamp of last_polled_end_utc",
	})

	// ArchiveRequests counts archive API requests by outcome.
	ArchiveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchvane",
		Subsystem: "archive",
		Name:      "requests_total",
		Help:      "Total archive API page requests by outcome",
	}, []string{"outcome"})

	// ArchiveRequestDuration tracks archive API page request latency.
	ArchiveRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "searchvane",
		Subsystem: "archive",
		Name:      "request_duration_seconds",
		Help:      "Duration of archive API page requests in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	// TokenRefreshes counts OAuth2 token exchanges by outcome.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchvane",
		Subsystem: "archive",
		Name:      "token_refreshes_total",
		Help:      "Total OAuth2 token exchanges by outcome",
	}, []string{"outcome"})

	// CircuitBreakerState exposes the archive client breaker state
	// (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "searchvane",
		Subsystem: "archive",
		Name:      "circuit_breaker_state",
		Help:      "Archive client circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	// HTTPRequests counts API requests by method, route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchvane",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP API requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks API request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "searchvane",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP API requests in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})
)

// RecordCycle records the outcome of one ingest cycle in a single call so
// call sites stay small.
func RecordCycle(phase string, duration time.Duration, fetched, inserted, duplicates int, err error, errType string) {
	if err != nil {
		IngestErrors.WithLabelValues(errType).Inc()
		return
	}
	IngestCycleDuration.WithLabelValues(phase).Observe(duration.Seconds())
	IngestRecordsFetched.Add(float64(fetched))
	IngestRecordsInserted.Add(float64(inserted))
	IngestDuplicatesSkipped.Add(float64(duplicates))
	IngestLastSuccess.SetToCurrentTime()
}

// RecordHTTPRequest records one served API request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
