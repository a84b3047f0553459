package httpclient

import (
	"math/rand"
	"time"
)

// RetryPolicy describes the backoff schedule for retryable request failures.
// The delay before attempt n (1-based) is BaseDelay*2^(n-1), plus up to
// JitterFraction of that value, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultRetryPolicy matches the limits both upstream providers tolerate.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.25,
	}
}

// Delay returns the backoff duration before retrying after the given
// zero-based attempt. rng may be nil, in which case no jitter is added.
func (p RetryPolicy) Delay(attempt int, rng *rand.Rand) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if rng != nil && p.JitterFraction > 0 {
		jitter := time.Duration(rng.Float64() * p.JitterFraction * float64(d))
		d += jitter
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}
