package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	Hostname       string
	Listen         string
	LogLevel       string
	TLSCert        string
	TLSKey         string
	AuthURL        string
	EmailURL       string
	MaxMessageSize int
	MaxRecipients  int
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./smtpgw.toml", "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Advertised server hostname")
	flag.StringVar(&f.Listen, "listen", "", "Listen address")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate file path")
	flag.StringVar(&f.TLSKey, "tls-key", "", "TLS key file path")
	flag.StringVar(&f.AuthURL, "auth-url", "", "Auth API base URL")
	flag.StringVar(&f.EmailURL, "email-url", "", "Email API base URL")
	flag.IntVar(&f.MaxMessageSize, "max-message-size", 0, "Maximum message size in bytes")
	flag.IntVar(&f.MaxRecipients, "max-recipients", 0, "Maximum recipients per message")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg = mergeConfig(cfg, fileConfig.Smtpgw)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file and env values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.TLSCert != "" {
		cfg.TLS.CertFile = f.TLSCert
	}
	if f.TLSKey != "" {
		cfg.TLS.KeyFile = f.TLSKey
	}
	if f.AuthURL != "" {
		cfg.Upstream.AuthURL = f.AuthURL
	}
	if f.EmailURL != "" {
		cfg.Upstream.EmailURL = f.EmailURL
	}
	if f.MaxMessageSize > 0 {
		cfg.Limits.MaxMessageSize = f.MaxMessageSize
	}
	if f.MaxRecipients > 0 {
		cfg.Limits.MaxRecipients = f.MaxRecipients
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags, applies
// environment overrides, then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg = ApplyEnv(cfg)
	return ApplyFlags(cfg, f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}
	if src.Listen != "" {
		dst.Listen = src.Listen
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.TLS.CertFile != "" {
		dst.TLS.CertFile = src.TLS.CertFile
	}
	if src.TLS.KeyFile != "" {
		dst.TLS.KeyFile = src.TLS.KeyFile
	}
	if src.TLS.SelfSigned {
		dst.TLS.SelfSigned = true
	}

	if src.Upstream.AuthURL != "" {
		dst.Upstream.AuthURL = src.Upstream.AuthURL
	}
	if src.Upstream.EmailURL != "" {
		dst.Upstream.EmailURL = src.Upstream.EmailURL
	}
	if src.Upstream.AuthRetries > 0 {
		dst.Upstream.AuthRetries = src.Upstream.AuthRetries
	}
	if src.Upstream.SubmitRetries > 0 {
		dst.Upstream.SubmitRetries = src.Upstream.SubmitRetries
	}

	if src.Limits.MaxMessageSize > 0 {
		dst.Limits.MaxMessageSize = src.Limits.MaxMessageSize
	}
	if src.Limits.MaxRecipients > 0 {
		dst.Limits.MaxRecipients = src.Limits.MaxRecipients
	}
	if src.Limits.MaxConnections > 0 {
		dst.Limits.MaxConnections = src.Limits.MaxConnections
	}

	if src.Timeouts.Idle != "" {
		dst.Timeouts.Idle = src.Timeouts.Idle
	}
	if src.Timeouts.Auth != "" {
		dst.Timeouts.Auth = src.Timeouts.Auth
	}
	if src.Timeouts.Submit != "" {
		dst.Timeouts.Submit = src.Timeouts.Submit
	}

	if src.Metrics.Enabled {
		dst.Metrics.Enabled = true
	}
	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}
	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if src.Cache.RedisAddr != "" {
		dst.Cache.RedisAddr = src.Cache.RedisAddr
	}
	if src.Cache.TTL != "" {
		dst.Cache.TTL = src.Cache.TTL
	}

	return dst
}
