package dispatch

import (
	"math/rand"
	"time"
)

// RetryPolicy bounds how hard the dispatcher leans on a failing upstream.
// Attempts counts the initial call, so MaxAttempts=3 means at most two
// retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns the standard retry budget for quote batches.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// Delay returns the jittered backoff before retry attempt n (1-based over
// completed attempts). Jitter is ±20% to keep concurrent batches from
// retrying in lockstep.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
}
