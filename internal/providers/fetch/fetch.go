// Package fetch is the shared outbound HTTP helper for all providers: one
// place for the user agent, per-host politeness limiting, transient-error
// retry, response size caps and charset normalization.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; pt-gen/2.0)"
	maxBodyBytes     = 4 << 20
)

// Per-host politeness: upstream sites are rate-limited and anti-bot
// protected, so outbound requests to one host are paced regardless of how
// many inbound requests fan out to it.
const (
	hostRequestsPerSecond = 2
	hostBurst             = 4
)

type Client struct {
	http      *http.Client
	userAgent string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	retry RetryConfig
}

type Option func(*Client)

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if strings.TrimSpace(userAgent) != "" {
			c.userAgent = userAgent
		}
	}
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	client := &Client{
		http:      httpClient,
		userAgent: defaultUserAgent,
		limiters:  make(map[string]*rate.Limiter),
		retry:     DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// RequestOption mutates a single outbound request.
type RequestOption func(*http.Request)

func WithCookie(cookie string) RequestOption {
	return func(r *http.Request) {
		if strings.TrimSpace(cookie) != "" {
			r.Header.Set("Cookie", cookie)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Get fetches a URL and returns the body decoded to UTF-8. Non-2xx statuses
// are errors carrying the status code; transient network failures are
// retried with backoff.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if err := c.limiterFor(parsed.Host).Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	err = RetryWithBackoff(ctx, c.retry, func() error {
		var fetchErr error
		body, fetchErr = c.fetchOnce(ctx, rawURL, opts)
		return fetchErr
	})
	return body, err
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string, opts []RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	// Decode whatever charset the site declares (douban mirrors and melon
	// pages are not always UTF-8) into UTF-8 before parsing.
	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("charset detection: %w", err)
	}
	return io.ReadAll(reader)
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(hostRequestsPerSecond), hostBurst)
		c.limiters[host] = limiter
	}
	return limiter
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream HTTP %d: %s", e.Code, e.URL)
}

// RetryConfig controls the exponential backoff behavior for RetryWithBackoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 300 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryWithBackoff retries fn with exponential backoff. Only transient
// network failures are retried; upstream 4xx/5xx and parse errors surface
// immediately.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "timeout")
}
