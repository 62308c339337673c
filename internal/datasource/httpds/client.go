// Package httpds reads access-log objects over HTTP(S), typically presigned
// object URLs or a log archive behind a web server. Requests are retried with
// exponential backoff on transport errors, 429 and 5xx responses.
package httpds

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Config configures a Client. Zero values get defaults:
//
//	Timeout:        30s
//	MaxRetries:     3
//	InitialBackoff: 200ms
//	MaxBackoff:     5s
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Header is sent with every request.
	Header http.Header
	// Transport replaces http.DefaultTransport.
	Transport http.RoundTripper
}

// StatusError is returned for a final non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpds: GET %s: status %d", e.URL, e.Code)
}

// Client is a GET-only HTTP client with retries. It is safe for concurrent
// use.
type Client struct {
	hc         *http.Client
	maxRetries int
	initial    time.Duration
	max        time.Duration
	header     http.Header

	// wait blocks for d or until ctx is done; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Client{
		hc:         &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		maxRetries: cfg.MaxRetries,
		initial:    cfg.InitialBackoff,
		max:        cfg.MaxBackoff,
		header:     cfg.Header.Clone(),
		wait:       waitContext,
	}
}

// Get fetches url. The caller closes the body of the returned response,
// which always has a 2xx status.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range c.header {
			req.Header[k] = append([]string(nil), vs...)
		}

		resp, err := c.hc.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("httpds: GET %s: %w", url, err)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		default:
			resp.Body.Close()
			lastErr = &StatusError{URL: url, Code: resp.StatusCode}
			if !retryable(resp.StatusCode) {
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff returns initial * 2^retry, capped at max.
func (c *Client) backoff(retry int) time.Duration {
	d := c.initial
	for i := 0; i < retry && d < c.max; i++ {
		d *= 2
	}
	if d > c.max {
		return c.max
	}
	return d
}

func waitContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
