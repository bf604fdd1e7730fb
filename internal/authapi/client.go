// Package authapi validates SMTP credentials against the upstream Auth
// service, exchanging a username/password pair for an opaque API key.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sendgate/smtpgw/internal/apierror"
	"github.com/sendgate/smtpgw/internal/metrics"
)

// backoffSchedule is the wait before each retry attempt. Attempts beyond the
// schedule reuse the last entry.
var backoffSchedule = []time.Duration{500 * time.Millisecond, time.Second}

// Cache stores validated credentials so repeat AUTH attempts skip the
// upstream round trip. Implementations are best-effort; a miss or a failed
// store must never fail validation.
type Cache interface {
	Get(ctx context.Context, username, password string) (string, bool)
	Set(ctx context.Context, username, password, apiKey string)
}

// Client calls the Auth service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	cache      Cache
	metrics    metrics.Collector
}

// NewClient creates an Auth service client. retries is the number of extra
// attempts made after a transient failure; timeout applies per attempt.
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

// WithCache attaches a credential cache and returns the client.
func (c *Client) WithCache(cache Cache) *Client {
	c.cache = cache
	return c
}

type validateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type validateResponse struct {
	APIKey string `json:"api_key"`
}

// Validate exchanges credentials for an API key. Authentication failures are
// authoritative on first sight and never retried; 5xx and transport errors
// are retried on the backoff schedule before failing as server or network
// errors respectively.
func (c *Client) Validate(ctx context.Context, username, password string) (string, error) {
	if c.cache != nil {
		if key, ok := c.cache.Get(ctx, username, password); ok {
			return key, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff(attempt-1)); err != nil {
				return "", apierror.Wrap(apierror.KindNetwork, err, "auth request cancelled")
			}
		}

		key, retryable, err := c.validateOnce(ctx, username, password)
		if err == nil {
			if c.cache != nil {
				c.cache.Set(ctx, username, password, key)
			}
			return key, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}

	return "", lastErr
}

// validateOnce performs a single upstream attempt. The second return reports
// whether the failure is transient and worth retrying.
func (c *Client) validateOnce(ctx context.Context, username, password string) (string, bool, error) {
	body, err := json.Marshal(validateRequest{Username: username, Password: password})
	if err != nil {
		return "", false, apierror.Wrap(apierror.KindServer, err, "encoding auth request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return "", false, apierror.Wrap(apierror.KindServer, err, "creating auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.APIRequest("auth", "error", time.Since(start))
		return "", true, apierror.Wrap(apierror.KindNetwork, err, "auth service unreachable")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		var vr validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			c.metrics.APIRequest("auth", "error", time.Since(start))
			return "", false, apierror.Wrap(apierror.KindServer, err, "decoding auth response")
		}
		if vr.APIKey == "" {
			c.metrics.APIRequest("auth", "error", time.Since(start))
			return "", false, apierror.New(apierror.KindServer, "auth service returned no api_key")
		}
		c.metrics.APIRequest("auth", "success", time.Since(start))
		return vr.APIKey, false, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.metrics.APIRequest("auth", "error", time.Since(start))
		return "", false, apierror.New(apierror.KindAuthentication, "invalid credentials")

	case resp.StatusCode >= 500:
		c.metrics.APIRequest("auth", "error", time.Since(start))
		return "", true, apierror.New(apierror.KindServer, "auth service returned status %d", resp.StatusCode)

	default:
		c.metrics.APIRequest("auth", "error", time.Since(start))
		return "", false, apierror.New(apierror.KindServer, "unexpected status %d from auth service", resp.StatusCode)
	}
}

func backoff(retry int) time.Duration {
	if retry >= len(backoffSchedule) {
		retry = len(backoffSchedule) - 1
	}
	return backoffSchedule[retry]
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
