package httpclient

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelayGrowsExponentially(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute}

	assert.Equal(t, time.Second, p.Delay(0, nil))
	assert.Equal(t, 2*time.Second, p.Delay(1, nil))
	assert.Equal(t, 4*time.Second, p.Delay(2, nil))
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, p.Delay(10, nil))
	// Shift overflow also lands on the cap.
	assert.Equal(t, 5*time.Second, p.Delay(63, nil))
}

func TestRetryPolicyJitterStaysBounded(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, JitterFraction: 0.25}
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		d := p.Delay(1, rng)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}
