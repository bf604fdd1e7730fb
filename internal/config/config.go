// Package config provides configuration management for the SMTP gateway.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// FileConfig is the top-level wrapper for the configuration file.
type FileConfig struct {
	Smtpgw Config `toml:"smtpgw"`
}

// Config holds the complete gateway configuration.
type Config struct {
	Hostname string `toml:"hostname"`
	Listen   string `toml:"listen"`
	LogLevel string `toml:"log_level"`

	TLS      TLSConfig      `toml:"tls"`
	Upstream UpstreamConfig `toml:"upstream"`
	Limits   LimitsConfig   `toml:"limits"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Cache    CacheConfig    `toml:"cache"`
}

// TLSConfig holds TLS certificate settings for STARTTLS.
type TLSConfig struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	// SelfSigned generates a throwaway certificate at the configured paths
	// when they do not exist. For local development only.
	SelfSigned bool `toml:"self_signed"`
}

// UpstreamConfig holds the Auth and Email API endpoints and retry policy.
type UpstreamConfig struct {
	AuthURL  string `toml:"auth_url"`
	EmailURL string `toml:"email_url"`
	// AuthRetries is the number of extra attempts after the first auth call.
	AuthRetries int `toml:"auth_retries"`
	// SubmitRetries is the number of extra attempts per recipient submit.
	SubmitRetries int `toml:"submit_retries"`
}

// LimitsConfig defines resource limits for the gateway.
type LimitsConfig struct {
	MaxMessageSize int `toml:"max_message_size"`
	MaxRecipients  int `toml:"max_recipients"`
	MaxConnections int `toml:"max_connections"`
}

// TimeoutsConfig defines timeout durations as duration strings.
type TimeoutsConfig struct {
	Idle   string `toml:"idle"`
	Auth   string `toml:"auth"`
	Submit string `toml:"submit"`
}

// MetricsConfig holds configuration for the metrics/health HTTP server.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// CacheConfig holds configuration for the Redis-backed API key cache.
// The cache is disabled when RedisAddr is empty.
type CacheConfig struct {
	RedisAddr string `toml:"redis_addr"`
	TTL       string `toml:"ttl"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname: "localhost",
		Listen:   ":587",
		LogLevel: "info",
		Upstream: UpstreamConfig{
			AuthRetries:   2,
			SubmitRetries: 1,
		},
		Limits: LimitsConfig{
			MaxMessageSize: 26214400, // 25 MB
			MaxRecipients:  100,
			MaxConnections: 1000,
		},
		Timeouts: TimeoutsConfig{
			Idle:   "5m",
			Auth:   "5s",
			Submit: "10s",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9100",
			Path:    "/metrics",
		},
		Cache: CacheConfig{
			TTL: "15m",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if c.Listen == "" {
		return errors.New("listen address is required")
	}

	if c.Upstream.AuthURL == "" {
		return errors.New("upstream auth_url is required")
	}
	if _, err := url.Parse(c.Upstream.AuthURL); err != nil {
		return fmt.Errorf("invalid auth_url: %w", err)
	}

	if c.Upstream.EmailURL == "" {
		return errors.New("upstream email_url is required")
	}
	if _, err := url.Parse(c.Upstream.EmailURL); err != nil {
		return fmt.Errorf("invalid email_url: %w", err)
	}

	if c.Upstream.AuthRetries < 0 {
		return errors.New("auth_retries must not be negative")
	}

	if c.Upstream.SubmitRetries < 0 {
		return errors.New("submit_retries must not be negative")
	}

	if c.Limits.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}

	if c.Limits.MaxRecipients <= 0 {
		return errors.New("max_recipients must be positive")
	}

	if c.Limits.MaxConnections <= 0 {
		return errors.New("max_connections must be positive")
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"idle", c.Timeouts.Idle},
		{"auth", c.Timeouts.Auth},
		{"submit", c.Timeouts.Submit},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid %s timeout: %w", d.name, err)
		}
	}

	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("invalid cache ttl: %w", err)
		}
	}

	return nil
}

// IdleTimeout returns the parsed idle timeout, or the default on absence.
func (c *Config) IdleTimeout() time.Duration {
	return parseDurationOr(c.Timeouts.Idle, 5*time.Minute)
}

// AuthTimeout returns the per-attempt Auth API timeout.
func (c *Config) AuthTimeout() time.Duration {
	return parseDurationOr(c.Timeouts.Auth, 5*time.Second)
}

// SubmitTimeout returns the per-attempt Email API timeout.
func (c *Config) SubmitTimeout() time.Duration {
	return parseDurationOr(c.Timeouts.Submit, 10*time.Second)
}

// CacheTTL returns the parsed cache TTL, or the default on absence.
func (c *Config) CacheTTL() time.Duration {
	return parseDurationOr(c.Cache.TTL, 15*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
