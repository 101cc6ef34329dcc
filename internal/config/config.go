// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package config loads Hearth configuration from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/logging"
)

// Rate-limit backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the full Hearth configuration.
type Config struct {
	HTTP      HTTPConfig      `koanf:"http" json:"http" yaml:"http" jsonschema:"description=Public API listener"`
	Database  DatabaseConfig  `koanf:"database" json:"database" yaml:"database"`
	Log       LogConfig       `koanf:"log" json:"log" yaml:"log"`
	Metrics   MetricsConfig   `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Tokens    TokensConfig    `koanf:"tokens" json:"tokens" yaml:"tokens" jsonschema:"description=Token lifetimes"`
	RateLimit RateLimitConfig `koanf:"ratelimit" json:"ratelimit" yaml:"ratelimit" jsonschema:"description=Login rate limit"`
	Redis     RedisConfig     `koanf:"redis" json:"redis" yaml:"redis"`
	Cleanup   CleanupConfig   `koanf:"cleanup" json:"cleanup" yaml:"cleanup"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" json:"addr" yaml:"addr"`
	ReadTimeout       time.Duration `koanf:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	TrustProxyHeaders bool          `koanf:"trust_proxy_headers" json:"trust_proxy_headers" yaml:"trust_proxy_headers" jsonschema:"description=Take the client address from X-Forwarded-For / X-Real-IP"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL            string `koanf:"url" json:"url" yaml:"url" jsonschema:"description=PostgreSQL URL; DATABASE_URL is used when unset"`
	ConnectRetries uint64 `koanf:"connect_retries" json:"connect_retries" yaml:"connect_retries"`
	AutoMigrate    bool   `koanf:"auto_migrate" json:"auto_migrate" yaml:"auto_migrate"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr" yaml:"addr"`
}

// TokensConfig holds token lifetimes.
type TokensConfig struct {
	AccessTTL       time.Duration `koanf:"access_ttl" json:"access_ttl" yaml:"access_ttl"`
	RefreshTTL      time.Duration `koanf:"refresh_ttl" json:"refresh_ttl" yaml:"refresh_ttl"`
	VerificationTTL time.Duration `koanf:"verification_ttl" json:"verification_ttl" yaml:"verification_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl" json:"reset_ttl" yaml:"reset_ttl"`
}

// RateLimitConfig configures login throttling.
type RateLimitConfig struct {
	Backend     string        `koanf:"backend" json:"backend" yaml:"backend" jsonschema:"enum=postgres,enum=redis"`
	MaxAttempts int           `koanf:"max_attempts" json:"max_attempts" yaml:"max_attempts" jsonschema:"minimum=0"`
	Window      time.Duration `koanf:"window" json:"window" yaml:"window"`
}

// RedisConfig configures the Redis attempt log.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr" yaml:"addr"`
	Password string `koanf:"password" json:"password" yaml:"password"`
	DB       int    `koanf:"db" json:"db" yaml:"db" jsonschema:"minimum=0"`
}

// CleanupConfig configures the expired session and attempt sweeper.
type CleanupConfig struct {
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			ConnectRetries: 5,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Tokens: TokensConfig{
			AccessTTL:       auth.DefaultAccessTokenTTL,
			RefreshTTL:      auth.DefaultRefreshTokenTTL,
			VerificationTTL: auth.DefaultVerificationTokenTTL,
			ResetTTL:        auth.DefaultResetTokenTTL,
		},
		RateLimit: RateLimitConfig{
			Backend:     BackendPostgres,
			MaxAttempts: auth.DefaultMaxLoginAttempts,
			Window:      auth.DefaultLoginWindow,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Cleanup: CleanupConfig{
			Interval: 10 * time.Minute,
		},
	}
}

// Validate checks invariants that the schema cannot express.
func (c *Config) Validate() error {
	invalid := func(key, msg string) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s: %s", key, msg)
	}

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return invalid("http.addr", "is required")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return invalid("database.url", "is required (or set DATABASE_URL)")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"tokens.access_ttl", c.Tokens.AccessTTL},
		{"tokens.refresh_ttl", c.Tokens.RefreshTTL},
		{"tokens.verification_ttl", c.Tokens.VerificationTTL},
		{"tokens.reset_ttl", c.Tokens.ResetTTL},
		{"ratelimit.window", c.RateLimit.Window},
		{"cleanup.interval", c.Cleanup.Interval},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return invalid(d.key, "must be a positive duration")
		}
	}
	if c.Tokens.RefreshTTL <= c.Tokens.AccessTTL {
		return invalid("tokens.refresh_ttl", "must be longer than tokens.access_ttl")
	}
	if c.RateLimit.MaxAttempts < 0 {
		return invalid("ratelimit.max_attempts", "must not be negative")
	}

	switch c.RateLimit.Backend {
	case BackendPostgres:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return invalid("redis.addr", "is required when ratelimit.backend is redis")
		}
	default:
		return invalid("ratelimit.backend", "must be postgres or redis")
	}
	return nil
}

// AuthConfig converts token and rate-limit settings for the auth service.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		AccessTokenTTL:       c.Tokens.AccessTTL,
		RefreshTokenTTL:      c.Tokens.RefreshTTL,
		VerificationTokenTTL: c.Tokens.VerificationTTL,
		ResetTokenTTL:        c.Tokens.ResetTTL,
		RateLimit: auth.RateLimitPolicy{
			MaxAttempts: c.RateLimit.MaxAttempts,
			Window:      c.RateLimit.Window,
		},
	}
}

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	if out.Database.URL != "" {
		out.Database.URL = redactURL(out.Database.URL)
	}
	if out.Redis.Password != "" {
		out.Redis.Password = logging.Redacted
	}
	return out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return logging.Redacted
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
