// Package metrics provides interfaces and implementations for collecting
// SMTP gateway metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import (
	"context"
	"time"
)

// Collector defines the interface for recording gateway metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed(duration time.Duration)
	TLSEstablished()

	// Command metrics
	CommandProcessed(command string)

	// Authentication metrics
	// result should be "success", "invalid", or "temp_error"
	AuthAttempt(result string)

	// Message metrics
	MessageReceived(sizeBytes int64)
	MessageAccepted()
	MessageRejected(reason string)

	// Per-recipient submission metrics
	// result should be "success" or "failed"
	SubmissionCompleted(result string)

	// Upstream API metrics
	// endpoint is "auth" or "email"; status is "success" or "error"
	APIRequest(endpoint, status string, latency time.Duration)
}

// Server defines the interface for the metrics/health HTTP server.
type Server interface {
	// Start begins serving. It blocks until the context is canceled or an
	// error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the server.
	Shutdown(ctx context.Context) error
}
