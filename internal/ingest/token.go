// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

package ingest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/searchvane/searchvane/internal/logging"
	"github.com/searchvane/searchvane/internal/metrics"
)

// CredentialProvider supplies bearer tokens for the archive API.
type CredentialProvider interface {
	// AccessToken returns a currently valid bearer token, refreshing it
	// when the cached one has expired.
	AccessToken(ctx context.Context) (string, error)
}

// OAuth2Provider exchanges client credentials for bearer tokens at
// {base}/oauth/token and caches them until expiry. The exchange runs under
// the caller's context, so a cancelled cycle aborts an in-flight request
// instead of waiting out the HTTP timeout. Failures are wrapped as AuthError
// so the engine aborts the cycle without touching the cursor.
type OAuth2Provider struct {
	cfg        *clientcredentials.Config
	httpClient *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOAuth2Provider builds a provider for the given API root and client
// credentials.
func NewOAuth2Provider(baseURL, clientID, clientSecret string, timeout time.Duration) *OAuth2Provider {
	return &OAuth2Provider{
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     baseURL + "/oauth/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		// The exchange keeps its own HTTP client so it is not subject to
		// the archive client's circuit breaker.
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AccessToken returns a valid bearer token, performing the client-credentials
// exchange when the cached token has expired.
func (p *OAuth2Provider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token.Valid() {
		return p.token.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.cfg.Token(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return "", &AuthError{Err: err}
	}
	p.token = token
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logging.Debug().Time("expiry", token.Expiry).Msg("Archive token available")
	return token.AccessToken, nil
}
