// Searchvane - Archive Search Log Ingestion and Auditing
// Copyright 2026 The Searchvane Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchvane/searchvane

// Package config loads and validates Searchvane configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables, with environment variables taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for Searchvane.
type Config struct {
	Archive  ArchiveConfig  `koanf:"archive"`
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ArchiveConfig configures the remote archive search-log API.
type ArchiveConfig struct {
	// BaseURL is the API root, e.g. https://api.services.mimecast.com.
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	ClientID     string        `koanf:"client_id" validate:"required"`
	ClientSecret string        `koanf:"client_secret" validate:"required"`
	Timeout      time.Duration `koanf:"timeout" validate:"min=1s"`
	// RequestsPerSecond caps outbound page requests; 0 disables the limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`
}

// DatabaseConfig configures the local DuckDB store.
type DatabaseConfig struct {
	Path                   string `koanf:"path" validate:"required"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads" validate:"min=0"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// IngestConfig configures the poll scheduler and windowing.
type IngestConfig struct {
	// Interval between scheduled poll cycles.
	Interval time.Duration `koanf:"interval" validate:"min=1m"`
	// BackfillDays bounds the initial historical fetch.
	BackfillDays int `koanf:"backfill_days" validate:"min=1,max=3650"`
	// Overlap is re-fetched before the cursor on every delta poll to absorb
	// late-arriving records. Must stay below Interval-scale drift but above
	// the remote API's indexing lag.
	Overlap       time.Duration `koanf:"overlap" validate:"min=0"`
	PageSize      int           `koanf:"page_size" validate:"min=1,max=500"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=1,max=10"`
	RetryDelay    time.Duration `koanf:"retry_delay" validate:"min=100ms"`
	// PollOnStart runs a cycle immediately at startup instead of waiting for
	// the first tick.
	PollOnStart bool `koanf:"poll_on_start"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// APIConfig configures read-side query defaults.
type APIConfig struct {
	DefaultDays     int           `koanf:"default_days" validate:"min=1,max=3650"`
	DefaultPageSize int           `koanf:"default_page_size" validate:"min=1"`
	MaxPageSize     int           `koanf:"max_page_size" validate:"min=1"`
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

// SecurityConfig configures API authentication and rate limiting.
type SecurityConfig struct {
	// AuthMode selects API authentication: jwt, basic, or none.
	AuthMode        string        `koanf:"auth_mode" validate:"oneof=jwt basic none"`
	JWTSecret       string        `koanf:"jwt_secret"`
	SessionTimeout  time.Duration `koanf:"session_timeout" validate:"min=1m"`
	AdminUsername   string        `koanf:"admin_username"`
	AdminPassword   string        `koanf:"admin_password"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for structural and cross-field errors.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := isValidationErrors(err, &verrs); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Cross-field checks that struct tags cannot express.
	if c.Ingest.Overlap >= time.Duration(c.Ingest.BackfillDays)*24*time.Hour {
		return fmt.Errorf("ingest.overlap (%s) must be smaller than the backfill window (%d days)",
			c.Ingest.Overlap, c.Ingest.BackfillDays)
	}
	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in jwt mode")
		}
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return fmt.Errorf("security.admin_username and security.admin_password are required in jwt mode")
		}
	case "basic":
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return fmt.Errorf("security.admin_username and security.admin_password are required in basic mode")
		}
	}
	return nil
}

// isValidationErrors unwraps err into validator.ValidationErrors.
func isValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}

// ListenAddr returns the host:port pair for the HTTP listener.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
