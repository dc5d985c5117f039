package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

type (
	WebhookClient struct {
		httpClient *http.Client
		limiter    *rate.Limiter
		maxRetries uint64
		newBackOff func() backoff.BackOff
	}

	Option func(*WebhookClient)

	// StatusError is returned when the webhook answers with a non-2xx status.
	StatusError struct {
		StatusCode int
		Body       string
	}
)

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

func WithTimeout(d time.Duration) Option {
	return func(c *WebhookClient) {
		c.httpClient.Timeout = d
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *WebhookClient) {
		c.httpClient = hc
	}
}

func WithMaxRetries(n uint64) Option {
	return func(c *WebhookClient) {
		c.maxRetries = n
	}
}

// WithRateLimit caps outgoing requests per second. Slack incoming webhooks
// allow roughly one message per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *WebhookClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *WebhookClient) {
		c.newBackOff = fn
	}
}

func NewWebhookClient(opts ...Option) *WebhookClient {
	c := &WebhookClient{
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends payload as JSON to url. Transport errors, 429 and 5xx responses
// are retried with exponential backoff; other failures return immediately.
func (c *WebhookClient) Post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %w", err)
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return c.send(ctx, url, body)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return fmt.Errorf("error sending webhook: %w", err)
	}
	return nil
}

func (c *WebhookClient) send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("error building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return statusErr
	}
	return backoff.Permanent(statusErr)
}
