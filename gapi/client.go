package gapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAttempts caps 429 retries for mutating calls.
	DefaultMaxAttempts = 3
	// FetchMaxAttempts is the higher cap used by read helpers, where a long
	// retry tail is acceptable because the call is idempotent.
	FetchMaxAttempts = 20
	// DefaultRequestTimeout bounds one logical call including its retries so
	// a stuck upstream cannot hold a request handler indefinitely.
	DefaultRequestTimeout = 60 * time.Second
)

// Client performs authenticated calls against Google APIs with shared retry,
// classification, and global concurrency limiting.
type Client struct {
	http        *http.Client
	tokens      TokenProvider
	limiter     *Limiter
	backoff     BackoffStrategy
	maxAttempts int
	timeout     time.Duration
	log         *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter shares a global concurrency limiter across clients.
func WithLimiter(l *Limiter) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithBackoff overrides the retry backoff strategy.
func WithBackoff(b BackoffStrategy) ClientOption {
	return func(c *Client) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithMaxAttempts sets the retry cap for 429 responses.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRequestTimeout sets the per-call deadline covering all retries.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a structured logger for retry diagnostics.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a Client. Panics on a nil token provider to fail fast
// during initialization.
func NewClient(tokens TokenProvider, opts ...ClientOption) *Client {
	if tokens == nil {
		panic("gapi: TokenProvider is required")
	}

	c := &Client{
		http:        &http.Client{Timeout: 30 * time.Second},
		tokens:      tokens,
		limiter:     NewLimiter(10),
		backoff:     DefaultBackoff(),
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultRequestTimeout,
		log:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs one authenticated call on behalf of userID, retrying 429
// responses with backoff. Other non-2xx responses are classified immediately
// via ClassifyStatus and never retried. Returns the response body on success.
func (c *Client) Do(ctx context.Context, userID uuid.UUID, method, url string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.tokens.Token(ctx, userID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		respBody, err := c.doOnce(ctx, token, method, url, body)
		if err == nil {
			return respBody, nil
		}

		if !errors.Is(err, ErrRateLimited) || attempt >= c.maxAttempts {
			return nil, err
		}

		delay := c.backoff.NextInterval(attempt)
		c.log.DebugContext(ctx, "rate limited, backing off",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, token, method, url string, body []byte) ([]byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Release()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := ClassifyStatus(resp.StatusCode, string(respBody)); err != nil {
		return nil, err
	}

	return respBody, nil
}
