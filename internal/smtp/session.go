package smtp

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/sendgate/smtpgw/internal/apierror"
	"github.com/sendgate/smtpgw/internal/mailparse"
)

// Session implements the go-smtp Session and AuthSession interfaces.
// It owns the per-connection state: the API key obtained by AUTH and the
// envelope accumulated by MAIL and RCPT.
type Session struct {
	backend    *Backend
	conn       *smtp.Conn
	clientIP   string
	startedAt  time.Time
	tlsSeen    bool
	authUser   string
	apiKey     string
	from       string
	recipients []string
	logger     *slog.Logger
}

var errAuthRequired = &smtp.SMTPError{
	Code:         530,
	EnhancedCode: smtp.EnhancedCode{5, 7, 0},
	Message:      "Authentication required",
}

// AuthMechanisms returns the available authentication mechanisms.
// PLAIN is only advertised once the connection is wrapped in TLS.
func (s *Session) AuthMechanisms() []string {
	if s.conn == nil {
		return nil
	}
	if _, isTLS := s.conn.TLSConnectionState(); !isTLS {
		return nil
	}
	// The client's EHLO after STARTTLS is the first moment the wrapped
	// connection is observable here.
	if !s.tlsSeen {
		s.tlsSeen = true
		s.backend.collector.TLSEstablished()
		s.logger.Debug("TLS established")
	}
	return []string{sasl.Plain}
}

// Auth handles authentication.
// Implements smtp.AuthSession interface.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	s.backend.collector.CommandProcessed("AUTH")

	switch mech {
	case sasl.Plain:
		return &plainServer{authenticate: s.authenticate}, nil
	default:
		return nil, smtp.ErrAuthUnknownMechanism
	}
}

// authenticate runs the validator and records the outcome. The most recent
// attempt is authoritative: a failure clears any key a prior attempt stored.
func (s *Session) authenticate(username, password string) error {
	key, err := s.backend.validator.Validate(context.Background(), username, password)
	if err != nil {
		s.apiKey = ""
		s.authUser = ""

		if apierror.IsKind(err, apierror.KindAuthentication) {
			s.backend.collector.AuthAttempt("invalid")
			s.logger.Info("authentication failed", slog.String("username", username))
			return &smtp.SMTPError{
				Code:         535,
				EnhancedCode: smtp.EnhancedCode{5, 7, 8},
				Message:      "Authentication failed",
			}
		}

		s.backend.collector.AuthAttempt("temp_error")
		s.logger.Warn("authentication temporarily unavailable",
			slog.String("username", username),
			slog.String("error", err.Error()))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 7, 0},
			Message:      "Temporary authentication failure",
		}
	}

	s.apiKey = key
	s.authUser = username
	s.backend.collector.AuthAttempt("success")
	s.logger.Info("authentication successful", slog.String("username", username))
	return nil
}

// Mail handles the MAIL FROM command.
// Implements smtp.Session interface.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.backend.collector.CommandProcessed("MAIL")

	if s.apiKey == "" {
		return errAuthRequired
	}

	s.from = from
	s.recipients = nil
	s.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt handles the RCPT TO command.
// Implements smtp.Session interface.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.backend.collector.CommandProcessed("RCPT")

	if s.apiKey == "" {
		return errAuthRequired
	}

	if s.backend.maxRecipients > 0 && len(s.recipients) >= s.backend.maxRecipients {
		return &smtp.SMTPError{
			Code:         452,
			EnhancedCode: smtp.EnhancedCode{4, 5, 3},
			Message:      "Too many recipients",
		}
	}

	s.recipients = append(s.recipients, to)
	s.logger.Debug("RCPT TO", slog.String("to", to))
	return nil
}

// Data handles the DATA command: parse the message, fan it out through the
// submitter, and fold the outcome into one SMTP reply. The envelope is
// cleared on every terminal reply; the API key survives for the next message.
func (s *Session) Data(r io.Reader) error {
	defer s.clearEnvelope()

	s.backend.collector.CommandProcessed("DATA")

	if s.apiKey == "" {
		if s.from == "" {
			return errAuthRequired
		}
		// MAIL was accepted, so the key vanishing mid-transaction is an
		// internal invariant violation, not a client fault.
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Internal error: missing API key",
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		if err == smtp.ErrDataTooLarge {
			s.backend.collector.MessageRejected("size")
			return err
		}
		s.logger.Debug("failed to read message data", slog.String("error", err.Error()))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Error reading message",
		}
	}

	s.backend.collector.MessageReceived(int64(len(raw)))

	msg, err := mailparse.Parse(raw)
	if err != nil {
		s.backend.collector.MessageRejected("format")
		s.logger.Info("message rejected", slog.String("error", err.Error()))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message rejected: " + err.Error(),
		}
	}

	outcome, err := s.backend.submitter.Submit(context.Background(), s.apiKey, msg)
	if err != nil {
		return s.submitError(err)
	}

	s.backend.collector.MessageAccepted()
	s.logger.Info("message accepted",
		slog.Int("size", len(raw)),
		slog.Int("succeeded", len(outcome.Succeeded)),
		slog.Int("failed", len(outcome.Failed)))

	// A non-nil SMTPError with a 2xx code customises the success reply.
	return &smtp.SMTPError{
		Code:         250,
		EnhancedCode: smtp.EnhancedCode{2, 0, 0},
		Message:      "Message accepted for delivery: " + strings.Join(outcome.MessageIDs, ", "),
	}
}

// submitError maps the submitter's error taxonomy onto SMTP replies. This is
// the only place upstream failure kinds become wire codes.
func (s *Session) submitError(err error) error {
	kind, _ := apierror.KindOf(err)
	s.backend.collector.MessageRejected(kind.String())
	s.logger.Info("message rejected",
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()))

	switch kind {
	case apierror.KindValidation:
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message rejected: " + err.Error(),
		}
	case apierror.KindRateLimit:
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 7, 1},
			Message:      "Rate limit exceeded, try again later",
		}
	case apierror.KindNetwork:
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 4, 0},
			Message:      "Service temporarily unavailable",
		}
	default:
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary failure, try again later",
		}
	}
}

func (s *Session) clearEnvelope() {
	s.from = ""
	s.recipients = nil
}

// Reset is called when the client sends RSET.
// Implements smtp.Session interface.
func (s *Session) Reset() {
	s.clearEnvelope()
	s.logger.Debug("session reset")
}

// Logout is called when the client quits or the connection closes.
// Implements smtp.Session interface.
func (s *Session) Logout() error {
	s.backend.collector.ConnectionClosed(time.Since(s.startedAt))
	s.logger.Debug("session closed")
	return nil
}
