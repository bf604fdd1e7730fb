package config

import (
	"os"
	"strconv"
)

// ApplyEnv applies environment variable overrides to the configuration.
// Environment variables take precedence over the TOML file but are overridden
// by command-line flags.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("SMTPGW_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("SMTPGW_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SMTPGW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SMTPGW_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("SMTPGW_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("SMTPGW_AUTH_URL"); v != "" {
		cfg.Upstream.AuthURL = v
	}
	if v := os.Getenv("SMTPGW_EMAIL_URL"); v != "" {
		cfg.Upstream.EmailURL = v
	}
	if v := os.Getenv("SMTPGW_MAX_MESSAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.MaxMessageSize = n
		}
	}
	if v := os.Getenv("SMTPGW_MAX_RECIPIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.MaxRecipients = n
		}
	}
	if v := os.Getenv("SMTPGW_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.MaxConnections = n
		}
	}
	if v := os.Getenv("SMTPGW_IDLE_TIMEOUT"); v != "" {
		cfg.Timeouts.Idle = v
	}
	if v := os.Getenv("SMTPGW_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SMTPGW_CACHE_TTL"); v != "" {
		cfg.Cache.TTL = v
	}
	if v := os.Getenv("SMTPGW_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = v
	}

	return cfg
}
