// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package ingest

import (
	"errors"
	"fmt"
)

// Cycle failures are classified into three types so logs and metrics can
// distinguish credential problems from remote API problems from local
// storage problems. Any of them aborts the cycle; the cursor stays
// untouched and the next scheduled cycle retries the same window.

// AuthError indicates the OAuth2 token exchange failed or the archive API
// rejected the presented token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("archive authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError indicates the archive search-log API could not deliver a
// complete, well-formed window: exhausted retries, a permanent HTTP error,
// a malformed payload, or pagination that failed to make progress.
type FetchError struct {
	Err error
	// StatusCode is the HTTP status that triggered the failure, when one
	// applies (0 otherwise).
	StatusCode int
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("archive fetch failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("archive fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError indicates the local store rejected the window commit.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store commit failed: %v", e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// classifyError returns the metrics label for a cycle failure.
func classifyError(err error) string {
	var authErr *AuthError
	var fetchErr *FetchError
	var storeErr *StoreError
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &storeErr):
		return "store"
	default:
		return "other"
	}
}
