// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package ingest

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/metrics"
	"github.com/searchvane/searchvane/internal/models"
)

// BreakerFetcher wraps a Fetcher with a circuit breaker so a persistently
// failing archive API stops being hammered: after repeated window failures
// the breaker opens and cycles fail fast until the cooldown elapses.
type BreakerFetcher struct {
	inner   Fetcher
	breaker *gobreaker.CircuitBreaker[[]models.SearchLogRecord]
}

// NewBreakerFetcher wraps inner with a circuit breaker.
func NewBreakerFetcher(inner Fetcher) *BreakerFetcher {
	settings := gobreaker.Settings{
		Name:        "archive-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.CircuitBreakerState.Set(breakerStateValue(to))
		},
	}
	return &BreakerFetcher{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[[]models.SearchLogRecord](settings),
	}
}

// FetchWindow fetches through the breaker. An open breaker surfaces as a
// FetchError so the engine's taxonomy stays uniform.
func (b *BreakerFetcher) FetchWindow(ctx context.Context, start, end time.Time) ([]models.SearchLogRecord, error) {
	records, err := b.breaker.Execute(func() ([]models.SearchLogRecord, error) {
		return b.inner.FetchWindow(ctx, start, end)
	})
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			return nil, &FetchError{Err: err}
		}
		return nil, err
	}
	return records, nil
}

// State exposes the current breaker state for health reporting.
func (b *BreakerFetcher) State() gobreaker.State {
	return b.breaker.State()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
