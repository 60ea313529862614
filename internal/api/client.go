// Package api is a thin JSON-over-HTTP client for the remote ChatXP service.
// It retries requests that could not reach the server, classifies failures
// into network, server and bad-response errors, and exposes one typed method
// per remote endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/whisper/chatxp/internal/metrics"
)

// maxBodyBytes caps how much of a response body is read into memory.
const maxBodyBytes = 4 << 20

// Config holds client settings.
type Config struct {
	BaseURL        string        // e.g. https://chatapi.miniproject.in
	Timeout        time.Duration // per attempt
	MaxAttempts    int           // total attempts for unreachable-server failures
	RetryBaseDelay time.Duration // first backoff, doubled per attempt
	RetryMaxDelay  time.Duration // backoff cap
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://chatapi.miniproject.in",
		Timeout:        10 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: 300 * time.Millisecond,
		RetryMaxDelay:  2 * time.Second,
	}
}

// Client talks to the remote API. It is safe for concurrent use.
type Client struct {
	cfg   Config
	http  *http.Client
	clock clock.Clock
	log   zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces the clock used for retry backoff.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client. Zero config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		clock: clock.New(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one call. Name labels the call in metrics and logs; it
// should be the endpoint template, not the concrete path.
type Request struct {
	Name   string
	Method string
	Header http.Header
	Body   any
}

// RetryDelay returns the backoff before retry number attempt (1-based):
// base doubled per attempt, capped at max.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Do performs the request against endpoint and decodes the JSON reply into
// out, which may be nil. An empty 2xx body leaves out untouched.
func (c *Client) Do(ctx context.Context, endpoint string, req Request, out any) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Name == "" {
		req.Name = "other"
	}
	url := c.cfg.BaseURL + endpoint

	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("api: marshal %s: %w", req.Name, err)
		}
		payload = b
	}

	start := c.clock.Now()
	err := c.doWithRetry(ctx, url, req, payload, out)
	metrics.APIRequestDuration.WithLabelValues(req.Name).Observe(c.clock.Since(start).Seconds())
	metrics.APIRequestsTotal.WithLabelValues(req.Name, outcome(err)).Inc()
	return err
}

func (c *Client) doWithRetry(ctx context.Context, url string, req Request, payload []byte, out any) error {
	for attempt := 1; ; attempt++ {
		c.log.Debug().
			Str("method", req.Method).
			Str("url", url).
			Int("attempt", attempt).
			Msg("[api] request")

		err := c.once(ctx, url, req, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("api: %s: %w", req.Name, ctx.Err())
		}
		if !isUnreachable(err) {
			return err
		}
		if attempt >= c.cfg.MaxAttempts {
			c.log.Warn().Err(err).Str("url", url).Int("attempts", attempt).Msg("[api] giving up")
			return fmt.Errorf("%w (%s): %v", ErrNetwork, url, err)
		}

		delay := RetryDelay(attempt, c.cfg.RetryBaseDelay, c.cfg.RetryMaxDelay)
		metrics.APIRetriesTotal.Inc()
		c.log.Debug().Err(err).Dur("delay", delay).Msg("[api] server unreachable, retrying")

		t := c.clock.Timer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("api: %s: %w", req.Name, ctx.Err())
		case <-t.C:
		}
	}
}

func (c *Client) once(ctx context.Context, url string, req Request, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("api: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			URL:        url,
			Body:       string(data),
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return fmt.Errorf("%w: received non-JSON response from server or proxy. URL: %s Response: %s",
			ErrBadResponse, url, preview(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: it might be a proxy error page: %v", ErrBadResponse, err)
	}
	return nil
}

// isUnreachable reports whether err means no connection was established.
// Failures after the connection is up are not retried.
func isUnreachable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := IsServerError(err); ok {
		return "server"
	}
	switch {
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
