package metrics

import "time"

// NoopCollector is a Collector that discards all metrics.
// Used when metrics are disabled.
type NoopCollector struct{}

// NewNoopCollector creates a new NoopCollector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (c *NoopCollector) ConnectionOpened()                        {}
func (c *NoopCollector) ConnectionClosed(time.Duration)           {}
func (c *NoopCollector) TLSEstablished()                          {}
func (c *NoopCollector) CommandProcessed(string)                  {}
func (c *NoopCollector) AuthAttempt(string)                       {}
func (c *NoopCollector) MessageReceived(int64)                    {}
func (c *NoopCollector) MessageAccepted()                         {}
func (c *NoopCollector) MessageRejected(string)                   {}
func (c *NoopCollector) SubmissionCompleted(string)               {}
func (c *NoopCollector) APIRequest(string, string, time.Duration) {}

// Ensure NoopCollector implements Collector.
var _ Collector = (*NoopCollector)(nil)
