package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"golang.org/x/net/netutil"
)

// shutdownGrace bounds how long in-flight sessions may run after the context
// is cancelled before the listener is torn down.
const shutdownGrace = 30 * time.Second

// Server wraps a go-smtp server with the gateway's listener policy: a single
// submission port, STARTTLS only, and a hard cap on concurrent connections.
type Server struct {
	server         *gosmtp.Server
	addr           string
	maxConnections int
	logger         *slog.Logger
}

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	Backend        *Backend
	Addr           string
	Hostname       string
	TLSConfig      *tls.Config
	MaxMessageSize int64
	MaxRecipients  int
	MaxConnections int
	IdleTimeout    time.Duration
	Logger         *slog.Logger
}

// NewServer creates a Server. AUTH is never allowed on the plaintext
// connection; clients must STARTTLS first.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := gosmtp.NewServer(cfg.Backend)
	s.Addr = cfg.Addr
	s.Domain = cfg.Hostname
	s.ReadTimeout = cfg.IdleTimeout
	s.WriteTimeout = cfg.IdleTimeout
	s.MaxMessageBytes = cfg.MaxMessageSize
	s.MaxRecipients = cfg.MaxRecipients
	s.TLSConfig = cfg.TLSConfig
	s.AllowInsecureAuth = false
	s.EnableSMTPUTF8 = true

	return &Server{
		server:         s,
		addr:           cfg.Addr,
		maxConnections: cfg.MaxConnections,
		logger:         logger,
	}
}

// Run listens on the configured address and serves until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.serve(ctx, ln)
}

// serve runs the accept loop on ln, applying the connection cap.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	if s.maxConnections > 0 {
		ln = netutil.LimitListener(ln, s.maxConnections)
	}

	s.logger.Info("starting SMTP listener",
		slog.String("address", ln.Addr().String()),
		slog.Int("max_connections", s.maxConnections))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			errChan <- fmt.Errorf("smtp server: %w", err)
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down SMTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error shutting down server", slog.String("error", err.Error()))
		_ = s.server.Close()
	}

	<-errChan
	s.logger.Info("SMTP server stopped")
	return ctx.Err()
}
