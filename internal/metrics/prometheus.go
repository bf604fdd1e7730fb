package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal    prometheus.Counter
	connectionsActive   prometheus.Gauge
	tlsConnectionsTotal prometheus.Counter
	connectionDuration  prometheus.Histogram

	// Command metrics
	commandsTotal *prometheus.CounterVec

	// Authentication metrics
	authAttemptsTotal *prometheus.CounterVec

	// Message metrics
	messagesReceivedTotal prometheus.Counter
	messagesAcceptedTotal prometheus.Counter
	messagesRejectedTotal *prometheus.CounterVec
	messageSizeBytes      prometheus.Histogram

	// Submission metrics
	submissionsTotal *prometheus.CounterVec

	// Upstream API metrics
	apiLatencySeconds *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpgw_connections_total",
			Help: "Total number of SMTP connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smtpgw_connections_active",
			Help: "Number of currently active SMTP connections.",
		}),
		tlsConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpgw_tls_connections_total",
			Help: "Total number of STARTTLS upgrades completed.",
		}),
		connectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smtpgw_connection_duration_seconds",
			Help:    "SMTP connection duration in seconds.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpgw_commands_total",
			Help: "Total number of SMTP commands processed.",
		}, []string{"command"}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpgw_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"result"}),

		messagesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpgw_messages_received_total",
			Help: "Total number of DATA payloads received.",
		}),
		messagesAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtpgw_messages_accepted_total",
			Help: "Total number of messages accepted for delivery.",
		}),
		messagesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpgw_messages_rejected_total",
			Help: "Total number of messages rejected.",
		}, []string{"reason"}),
		messageSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smtpgw_message_size_bytes",
			Help:    "Size of received messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400},
		}),

		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtpgw_submissions_total",
			Help: "Total number of per-recipient submissions to the Email API.",
		}, []string{"result"}),

		apiLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smtpgw_api_latency_seconds",
			Help:    "Upstream API request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"endpoint", "status"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionsTotal,
		c.connectionDuration,
		c.commandsTotal,
		c.authAttemptsTotal,
		c.messagesReceivedTotal,
		c.messagesAcceptedTotal,
		c.messagesRejectedTotal,
		c.messageSizeBytes,
		c.submissionsTotal,
		c.apiLatencySeconds,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active gauge and observes the duration.
func (c *PrometheusCollector) ConnectionClosed(duration time.Duration) {
	c.connectionsActive.Dec()
	c.connectionDuration.Observe(duration.Seconds())
}

// TLSEstablished increments the STARTTLS upgrade counter.
func (c *PrometheusCollector) TLSEstablished() {
	c.tlsConnectionsTotal.Inc()
}

// CommandProcessed increments the per-command counter.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

// AuthAttempt increments the auth attempt counter for the given result.
func (c *PrometheusCollector) AuthAttempt(result string) {
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

// MessageReceived counts a DATA payload and observes its size.
func (c *PrometheusCollector) MessageReceived(sizeBytes int64) {
	c.messagesReceivedTotal.Inc()
	c.messageSizeBytes.Observe(float64(sizeBytes))
}

// MessageAccepted counts a message accepted for delivery.
func (c *PrometheusCollector) MessageAccepted() {
	c.messagesAcceptedTotal.Inc()
}

// MessageRejected counts a rejected message by reason.
func (c *PrometheusCollector) MessageRejected(reason string) {
	c.messagesRejectedTotal.WithLabelValues(reason).Inc()
}

// SubmissionCompleted counts one per-recipient submission outcome.
func (c *PrometheusCollector) SubmissionCompleted(result string) {
	c.submissionsTotal.WithLabelValues(result).Inc()
}

// APIRequest observes one upstream API request.
func (c *PrometheusCollector) APIRequest(endpoint, status string, latency time.Duration) {
	c.apiLatencySeconds.WithLabelValues(endpoint, status).Observe(latency.Seconds())
}

// Ensure PrometheusCollector implements Collector.
var _ Collector = (*PrometheusCollector)(nil)
