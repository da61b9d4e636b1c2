// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/metrics"
	"github.com/searchvane/searchvane/internal/models"
)

const (
	searchLogsPath = "/api/archive/get-archive-search-logs"

	// maxErrorBodySize bounds how much of an error response body is read
	// for diagnostics.
	maxErrorBodySize = 64 * 1024

	// maxRateLimitRetries bounds consecutive 429 backoffs per page.
	maxRateLimitRetries = 3
)

// Fetcher retrieves all archive search-log records in a half-open time
// window [start, end).
type Fetcher interface {
	FetchWindow(ctx context.Context, start, end time.Time) ([]models.SearchLogRecord, error)
}

// ClientConfig tunes the archive API client.
type ClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	PageSize          int
	RetryAttempts     int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

// Client fetches paginated search-log windows from the archive API.
// Each page request passes through the rate limiter and, via the caller's
// wiring, a circuit breaker; transient failures (timeouts, 5xx, 429) are
// retried per page with exponential backoff, while permanent client errors
// and malformed payloads abort the window immediately.
type Client struct {
	cfg         ClientConfig
	httpClient  *http.Client
	credentials CredentialProvider
	limiter     *rate.Limiter
}

// NewClient creates an archive API client.
func NewClient(cfg ClientConfig, credentials CredentialProvider) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		credentials: credentials,
		limiter:     limiter,
	}
}

// Wire types for the archive search-log API.

type searchLogsRequest struct {
	Meta searchLogsRequestMeta  `json:"meta"`
	Data []searchLogsWindowSpec `json:"data"`
}

type searchLogsRequestMeta struct {
	Pagination requestPagination `json:"pagination"`
}

type requestPagination struct {
	PageSize  int    `json:"pageSize"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchLogsWindowSpec struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type searchLogsResponse struct {
	Meta struct {
		Pagination struct {
			Next       string `json:"next"`
			TotalCount int    `json:"totalCount"`
		} `json:"pagination"`
	} `json:"meta"`
	Data []struct {
		Logs []searchLogEntry `json:"logs"`
	} `json:"data"`
	Fail []struct {
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"fail"`
}

type searchLogEntry struct {
	CreateTime   string `json:"createTime"`
	EmailAddr    string `json:"emailAddr"`
	Source       string `json:"source"`
	SearchText   string `json:"searchText"`
	MuseQuery    string `json:"museQuery"`
	SearchReason string `json:"searchReason"`
	Description  string `json:"description"`
	IsAdmin      bool   `json:"isAdmin"`
	SearchPath   string `json:"searchPath"`
}

// FetchWindow retrieves every record in [start, end), following pagination
// tokens until the API reports no next page. The returned slice carries the
// whole window; the engine commits it in one transaction.
func (c *Client) FetchWindow(ctx context.Context, start, end time.Time) ([]models.SearchLogRecord, error) {
	token, err := c.credentials.AccessToken(ctx)
	if err != nil {
		if _, ok := err.(*AuthError); ok {
			return nil, err
		}
		return nil, &AuthError{Err: err}
	}

	var records []models.SearchLogRecord
	pageToken := ""
	seenTokens := make(map[string]struct{})
	page := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{Err: err}
		}

		resp, err := c.fetchPageWithRetry(ctx, token, start, end, pageToken)
		if err != nil {
			return nil, err
		}
		page++

		pageRecords, err := decodeEntries(resp)
		if err != nil {
			return nil, &FetchError{Err: err}
		}
		records = append(records, pageRecords...)

		next := resp.Meta.Pagination.Next
		if next == "" {
			logging.Debug().
				Int("pages", page).
				Int("records", len(records)).
				Time("window_start", start).
				Time("window_end", end).
				Msg("Window fetch complete")
			return records, nil
		}

		// A repeated token would loop forever; treat it as a remote fault
		// and let the next cycle retry the whole window.
		if _, seen := seenTokens[next]; seen {
			return nil, &FetchError{Err: fmt.Errorf("pagination token %q repeated after %d pages", next, page)}
		}
		seenTokens[next] = struct{}{}
		pageToken = next
	}
}

// fetchPageWithRetry requests one page, retrying transient failures with
// exponential backoff up to the configured attempt budget.
func (c *Client) fetchPageWithRetry(ctx context.Context, token string, start, end time.Time, pageToken string) (*searchLogsResponse, error) {
	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{Err: err}
		}

		resp, retryable, err := c.fetchPage(ctx, token, start, end, pageToken)
		if err == nil {
			return resp, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		logging.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.cfg.RetryAttempts).
			Dur("delay", delay).
			Msg("Page fetch failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &FetchError{Err: ctx.Err()}
		}
		delay *= 2
	}
	return nil, &FetchError{Err: fmt.Errorf("max retry attempts reached: %w", lastErr)}
}

// fetchPage performs a single page request. The second return value reports
// whether a failure is transient (worth retrying).
func (c *Client) fetchPage(ctx context.Context, token string, start, end time.Time, pageToken string) (*searchLogsResponse, bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, &FetchError{Err: err}
		}
	}

	body, err := json.Marshal(searchLogsRequest{
		Meta: searchLogsRequestMeta{
			Pagination: requestPagination{PageSize: c.cfg.PageSize, PageToken: pageToken},
		},
		Data: []searchLogsWindowSpec{{
			From: start.UTC().Format(time.RFC3339),
			To:   end.UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return nil, false, &FetchError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	for rateLimitRetry := 0; ; rateLimitRetry++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+searchLogsPath, bytes.NewReader(body))
		if err != nil {
			return nil, false, &FetchError{Err: fmt.Errorf("failed to build request: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		startedAt := time.Now()
		httpResp, err := c.httpClient.Do(req)
		metrics.ArchiveRequestDuration.Observe(time.Since(startedAt).Seconds())
		if err != nil {
			metrics.ArchiveRequests.WithLabelValues("network_error").Inc()
			return nil, true, &FetchError{Err: fmt.Errorf("request failed: %w", err)}
		}

		resp, retryable, done, err := c.handleResponse(ctx, httpResp, rateLimitRetry)
		if done {
			return resp, retryable, err
		}
		// 429 with budget remaining: loop for another attempt.
	}
}

// handleResponse consumes one HTTP response. done=false means the caller
// should immediately retry (a 429 whose backoff already elapsed).
func (c *Client) handleResponse(ctx context.Context, httpResp *http.Response, rateLimitRetry int) (*searchLogsResponse, bool, bool, error) {
	defer drainAndClose(httpResp.Body)

	switch {
	case httpResp.StatusCode == http.StatusOK:
		var resp searchLogsResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			metrics.ArchiveRequests.WithLabelValues("decode_error").Inc()
			return nil, false, true, &FetchError{Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		if len(resp.Fail) > 0 && len(resp.Fail[0].Errors) > 0 {
			metrics.ArchiveRequests.WithLabelValues("api_error").Inc()
			apiErr := resp.Fail[0].Errors[0]
			return nil, false, true, &FetchError{Err: fmt.Errorf("archive API error %s: %s", apiErr.Code, apiErr.Message)}
		}
		metrics.ArchiveRequests.WithLabelValues("success").Inc()
		return &resp, false, true, nil

	case httpResp.StatusCode == http.StatusTooManyRequests:
		metrics.ArchiveRequests.WithLabelValues("rate_limited").Inc()
		if rateLimitRetry >= maxRateLimitRetries {
			return nil, true, true, &FetchError{
				Err:        fmt.Errorf("rate limited after %d backoffs", rateLimitRetry),
				StatusCode: httpResp.StatusCode,
			}
		}
		wait := retryAfterDelay(httpResp, rateLimitRetry)
		logging.Warn().Dur("wait", wait).Int("retry", rateLimitRetry+1).Msg("Archive API rate limited")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, false, true, &FetchError{Err: ctx.Err()}
		}
		return nil, false, false, nil

	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		metrics.ArchiveRequests.WithLabelValues("auth_error").Inc()
		return nil, false, true, &AuthError{
			Err: fmt.Errorf("archive API returned %d: %s", httpResp.StatusCode, readBodyForError(httpResp.Body)),
		}

	case httpResp.StatusCode >= 500:
		metrics.ArchiveRequests.WithLabelValues("server_error").Inc()
		return nil, true, true, &FetchError{
			Err:        fmt.Errorf("archive API returned %d: %s", httpResp.StatusCode, readBodyForError(httpResp.Body)),
			StatusCode: httpResp.StatusCode,
		}

	default:
		// Remaining 4xx statuses are permanent for this request shape;
		// retrying the identical payload cannot succeed.
		metrics.ArchiveRequests.WithLabelValues("client_error").Inc()
		return nil, false, true, &FetchError{
			Err:        fmt.Errorf("archive API returned %d: %s", httpResp.StatusCode, readBodyForError(httpResp.Body)),
			StatusCode: httpResp.StatusCode,
		}
	}
}

// decodeEntries converts wire entries to records, validating timestamps.
func decodeEntries(resp *searchLogsResponse) ([]models.SearchLogRecord, error) {
	if len(resp.Data) == 0 {
		return nil, nil
	}

	entries := resp.Data[0].Logs
	records := make([]models.SearchLogRecord, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		createTime, err := parseArchiveTime(e.CreateTime)
		if err != nil {
			return nil, fmt.Errorf("record %d has malformed createTime %q: %w", i, e.CreateTime, err)
		}

		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode record %d: %w", i, err)
		}

		r := models.SearchLogRecord{
			CreateTime:   createTime,
			EmailAddr:    e.EmailAddr,
			Source:       e.Source,
			SearchText:   e.SearchText,
			MuseQuery:    e.MuseQuery,
			SearchReason: e.SearchReason,
			Description:  e.Description,
			IsAdmin:      e.IsAdmin,
			SearchPath:   e.SearchPath,
			RawJSON:      string(raw),
		}
		r.ID = r.StableID()
		records = append(records, r)
	}
	return records, nil
}

// parseArchiveTime accepts the timestamp formats the archive API emits:
// RFC3339 and the compact +0000 offset variant.
func parseArchiveTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

// retryAfterDelay honors the Retry-After header, falling back to exponential
// backoff when absent or unparseable.
func retryAfterDelay(resp *http.Response, retry int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<retry) * time.Second
}

// readBodyForError reads a bounded prefix of an error response body.
func readBodyForError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return "<no body>"
	}
	return string(data)
}

// drainAndClose fully consumes body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBodySize))
	_ = body.Close()
}
