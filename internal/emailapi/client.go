// Package emailapi submits parsed messages to the upstream Email service,
// expanding one envelope into one HTTP call per recipient and folding the
// per-recipient results back into a single outcome.
package emailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgate/smtpgw/internal/apierror"
	"github.com/sendgate/smtpgw/internal/mailparse"
	"github.com/sendgate/smtpgw/internal/metrics"
)

// RecipientFailure records one recipient the upstream did not accept.
type RecipientFailure struct {
	Address string
	Error   string
}

// Outcome aggregates a fan-out. MessageIDs holds one entry per success, in
// the same order as Succeeded.
type Outcome struct {
	Succeeded  []string
	Failed     []RecipientFailure
	MessageIDs []string
}

// Client calls the Email service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	metrics    metrics.Collector
}

// NewClient creates an Email service client. retries is the number of extra
// attempts per recipient after a transport failure; timeout applies per
// attempt.
func NewClient(baseURL string, timeout time.Duration, retries int, collector metrics.Collector) *Client {
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retries: retries,
		metrics: collector,
	}
}

type address struct {
	Email string `json:"email"`
}

type submitRequest struct {
	From        address                `json:"from"`
	To          []address              `json:"to"`
	Subject     string                 `json:"subject"`
	Text        string                 `json:"text"`
	HTML        string                 `json:"html,omitempty"`
	Attachments []mailparse.Attachment `json:"attachments,omitempty"`
}

type submitResponse struct {
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// Submit fans the message out to every recipient sequentially, preserving
// (to, cc, bcc) order. A 429 from the upstream aborts the fan-out and is
// returned as a rate-limit error; when every recipient fails the aggregate is
// a validation error carrying the per-recipient summary. Any other mix of
// results returns an Outcome with at least one success.
func (c *Client) Submit(ctx context.Context, apiKey string, msg *mailparse.Message) (*Outcome, error) {
	out := &Outcome{}

	for _, rcpt := range msg.Recipients() {
		id, failure, err := c.submitRecipient(ctx, apiKey, msg, rcpt)
		if err != nil {
			return nil, err
		}
		if failure != "" {
			out.Failed = append(out.Failed, RecipientFailure{Address: rcpt, Error: failure})
			c.metrics.SubmissionCompleted("failed")
			continue
		}
		out.Succeeded = append(out.Succeeded, rcpt)
		out.MessageIDs = append(out.MessageIDs, id)
		c.metrics.SubmissionCompleted("success")
	}

	if len(out.Succeeded) == 0 {
		return nil, apierror.New(apierror.KindValidation, "all recipients failed: %s", summarize(out.Failed))
	}
	return out, nil
}

// submitRecipient issues the upstream call for one recipient, retrying
// transport failures. The returned error is non-nil only for rate limiting;
// every other upstream outcome is either an id or a recorded failure string.
func (c *Client) submitRecipient(ctx context.Context, apiKey string, msg *mailparse.Message, rcpt string) (id, failure string, err error) {
	for attempt := 0; ; attempt++ {
		id, failure, err = c.submitOnce(ctx, apiKey, msg, rcpt)
		if err == nil {
			return id, failure, nil
		}
		if apierror.IsKind(err, apierror.KindRateLimit) {
			return "", "", err
		}
		if attempt >= c.retries {
			return "", fmt.Sprintf("network error: %v", err), nil
		}
	}
}

func (c *Client) submitOnce(ctx context.Context, apiKey string, msg *mailparse.Message, rcpt string) (id, failure string, err error) {
	body, err := json.Marshal(submitRequest{
		From:        address{Email: msg.From},
		To:          []address{{Email: rcpt}},
		Subject:     msg.Subject,
		Text:        msg.BodyText,
		HTML:        msg.BodyHTML,
		Attachments: msg.Attachments,
	})
	if err != nil {
		return "", fmt.Sprintf("encoding request: %v", err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Sprintf("creating request: %v", err), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.APIRequest("email", "error", time.Since(start))
		return "", "", apierror.Wrap(apierror.KindNetwork, err, "email service unreachable")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		var sr submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			c.metrics.APIRequest("email", "error", time.Since(start))
			return "", fmt.Sprintf("invalid response from email service: %v", err), nil
		}
		msgID := sr.MessageID
		if msgID == "" {
			msgID = sr.ID
		}
		if msgID == "" {
			c.metrics.APIRequest("email", "error", time.Since(start))
			return "", "email service returned no message id", nil
		}
		c.metrics.APIRequest("email", "success", time.Since(start))
		return msgID, "", nil

	case resp.StatusCode == http.StatusBadRequest:
		c.metrics.APIRequest("email", "error", time.Since(start))
		return "", upstreamErrorText(resp), nil

	case resp.StatusCode == http.StatusTooManyRequests:
		c.metrics.APIRequest("email", "error", time.Since(start))
		return "", "", apierror.New(apierror.KindRateLimit, "rate limited by email service")

	case resp.StatusCode >= 500:
		c.metrics.APIRequest("email", "error", time.Since(start))
		return "", fmt.Sprintf("email service error (status %d)", resp.StatusCode), nil

	default:
		c.metrics.APIRequest("email", "error", time.Since(start))
		return "", fmt.Sprintf("unexpected response from email service (status %d)", resp.StatusCode), nil
	}
}

// upstreamErrorText extracts the error text from a 400 response body,
// falling back to a generic message.
func upstreamErrorText(resp *http.Response) string {
	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err == nil {
		if sr.Error != "" {
			return sr.Error
		}
		if sr.Message != "" {
			return sr.Message
		}
	}
	return "email service rejected the message (status 400)"
}

func summarize(failures []RecipientFailure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, f.Address+": "+f.Error)
	}
	return strings.Join(parts, "; ")
}
