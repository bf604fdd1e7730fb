package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sendgate/smtpgw/internal/authapi"
	"github.com/sendgate/smtpgw/internal/authcache"
	"github.com/sendgate/smtpgw/internal/config"
	"github.com/sendgate/smtpgw/internal/emailapi"
	"github.com/sendgate/smtpgw/internal/logging"
	"github.com/sendgate/smtpgw/internal/metrics"
	"github.com/sendgate/smtpgw/internal/smtp"
	"github.com/sendgate/smtpgw/internal/tlsutil"
)

func runServe() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	var tlsConfig *tls.Config
	if cfg.TLS.CertFile != "" || cfg.TLS.SelfSigned {
		certFile, keyFile := cfg.TLS.CertFile, cfg.TLS.KeyFile
		if certFile == "" {
			certFile, keyFile = "smtpgw-cert.pem", "smtpgw-key.pem"
		}
		tlsConfig, err = tlsutil.EnsureCertificate(cfg.Hostname, certFile, keyFile, cfg.TLS.SelfSigned)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error setting up TLS: %v\n", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no TLS certificate configured, STARTTLS disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	var ready atomic.Bool
	var collector metrics.Collector = metrics.NewNoopCollector()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheusCollector(reg)
		metricsServer := metrics.NewHTTPServer(cfg.Metrics.Address, cfg.Metrics.Path, reg, ready.Load)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server listening", "address", cfg.Metrics.Address)
	}

	validator := authapi.NewClient(cfg.Upstream.AuthURL, cfg.AuthTimeout(), cfg.Upstream.AuthRetries, collector)
	if cfg.Cache.RedisAddr != "" {
		cache := authcache.New(cfg.Cache.RedisAddr, cfg.CacheTTL(), logger)
		defer func() {
			_ = cache.Close()
		}()
		validator = validator.WithCache(cache)
		logger.Info("auth cache enabled", "redis_addr", cfg.Cache.RedisAddr, "ttl", cfg.CacheTTL())
	}

	submitter := emailapi.NewClient(cfg.Upstream.EmailURL, cfg.SubmitTimeout(), cfg.Upstream.SubmitRetries, collector)

	backend := smtp.NewBackend(smtp.BackendConfig{
		Hostname:      cfg.Hostname,
		Validator:     validator,
		Submitter:     submitter,
		Collector:     collector,
		MaxRecipients: cfg.Limits.MaxRecipients,
		Logger:        logger,
	})

	srv := smtp.NewServer(smtp.ServerConfig{
		Backend:        backend,
		Addr:           cfg.Listen,
		Hostname:       cfg.Hostname,
		TLSConfig:      tlsConfig,
		MaxMessageSize: int64(cfg.Limits.MaxMessageSize),
		MaxRecipients:  cfg.Limits.MaxRecipients,
		MaxConnections: cfg.Limits.MaxConnections,
		IdleTimeout:    cfg.IdleTimeout(),
		Logger:         logger,
	})

	logger.Info("starting smtpgw",
		"hostname", cfg.Hostname,
		"listen", cfg.Listen,
		"auth_url", cfg.Upstream.AuthURL,
		"email_url", cfg.Upstream.EmailURL)

	ready.Store(true)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
