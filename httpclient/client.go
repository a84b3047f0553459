// Package httpclient provides the rate-limited HTTP client every provider
// call goes through. Both upstream providers penalize bursts, so requests to
// one provider are strictly serialized with a minimum inter-request interval.
package httpclient

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Options configures a Client for one provider bucket.
type Options struct {
	// MinInterval is the minimum spacing between requests to this provider.
	MinInterval time.Duration

	// Timeout bounds each individual request attempt.
	Timeout time.Duration

	// Retry is the backoff schedule for retryable failures.
	Retry RetryPolicy

	// UserAgent is sent with every request when the caller did not set one.
	UserAgent string

	// APIKey and APIKeyHeader, when both set, are attached to every request.
	APIKey       string
	APIKeyHeader string
}

// Client wraps http.Client with per-provider throttling and retries. A burst
// size of 1 on the limiter means concurrency never exceeds one in-flight
// request and waiters are released in submission order. Safe for concurrent
// use.
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a client for one provider bucket.
func New(opts Options) *Client {
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "paper-birthdays/1.0"
	}
	return &Client{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		opts:    opts,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do executes the request with throttling and retries. It retries on network
// errors, timeouts, 429 and 5xx responses; other 4xx responses are returned
// to the caller immediately. Request bodies must have GetBody set to be
// retryable (http.NewRequest does this for byte readers).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if c.opts.APIKey != "" && c.opts.APIKeyHeader != "" {
		req.Header.Set(c.opts.APIKeyHeader, c.opts.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.Retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// A dead request context means the caller gave up; everything
			// else, including the client's own per-attempt timeout, is a
			// transient network failure worth retrying.
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if err := c.backoff(req, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		retryAfter := parseRetryAfter(resp)
		drain(resp)
		lastErr = fmt.Errorf("provider returned status %d", resp.StatusCode)
		if err := c.backoff(req, attempt, retryAfter); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exhausted after %d attempts: %w", c.opts.Retry.MaxAttempts, lastErr)
}

// backoff sleeps before the next attempt, honoring context cancellation. A
// positive floor (from Retry-After) overrides shorter computed delays.
func (c *Client) backoff(req *http.Request, attempt int, floor time.Duration) error {
	if attempt >= c.opts.Retry.MaxAttempts-1 {
		return nil // last attempt already failed, Do returns lastErr
	}

	c.mu.Lock()
	delay := c.opts.Retry.Delay(attempt, c.rng)
	c.mu.Unlock()
	if floor > delay {
		delay = floor
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
	}

	return resetBody(req)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func resetBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("cannot rewind request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
