// Package smtp implements the gateway's SMTP session engine on top of
// go-smtp: STARTTLS, AUTH PLAIN against the credential validator, envelope
// accumulation, and DATA orchestration through the parser and submitter.
package smtp

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/sendgate/smtpgw/internal/emailapi"
	"github.com/sendgate/smtpgw/internal/logging"
	"github.com/sendgate/smtpgw/internal/mailparse"
	"github.com/sendgate/smtpgw/internal/metrics"
)

// CredentialValidator exchanges credentials for an API key.
type CredentialValidator interface {
	Validate(ctx context.Context, username, password string) (string, error)
}

// Submitter fans a parsed message out to the Email service.
type Submitter interface {
	Submit(ctx context.Context, apiKey string, msg *mailparse.Message) (*emailapi.Outcome, error)
}

// Backend implements the go-smtp Backend interface. It creates one Session
// per connection; the validator and submitter are shared and stateless.
type Backend struct {
	hostname      string
	validator     CredentialValidator
	submitter     Submitter
	collector     metrics.Collector
	maxRecipients int
	logger        *slog.Logger
}

// BackendConfig holds configuration for creating a Backend.
type BackendConfig struct {
	Hostname      string
	Validator     CredentialValidator
	Submitter     Submitter
	Collector     metrics.Collector
	MaxRecipients int
	Logger        *slog.Logger
}

// NewBackend creates a new Backend with the given configuration.
func NewBackend(cfg BackendConfig) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	return &Backend{
		hostname:      cfg.Hostname,
		validator:     cfg.Validator,
		submitter:     cfg.Submitter,
		collector:     collector,
		maxRecipients: cfg.MaxRecipients,
		logger:        logger,
	}
}

// NewSession is called for each new connection.
// It implements the smtp.Backend interface.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.collector.ConnectionOpened()

	clientIP := extractIPFromConn(c.Conn())
	logger := logging.WithConnection(b.logger, clientIP)
	logger.Debug("connection accepted")

	return &Session{
		backend:   b,
		conn:      c,
		clientIP:  clientIP,
		startedAt: time.Now(),
		logger:    logger,
	}, nil
}

// extractIPFromConn extracts the IP address string from a net.Conn.
func extractIPFromConn(conn net.Conn) string {
	if conn == nil {
		return ""
	}

	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}

	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
