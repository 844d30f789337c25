package vlm

import (
	"math/rand"
	"time"
)

// RetryPolicy makes the secondary adapter's retry behavior an explicit,
// inspectable value instead of logic buried in the call site.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryPolicy: 3 attempts, 500ms doubling, capped at 4s, ±25%
// jitter to avoid retry alignment across concurrent jobs.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		Jitter:      true,
	}
}

// Delay returns how long to wait after the given failed attempt
// (1-based). The base delay doubles each attempt and is capped.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter {
		// ±25%; sub-2ns delays have no jitter span to draw from
		span := int64(d) / 2
		if span > 0 {
			d = d - time.Duration(span/2) + time.Duration(rand.Int63n(span))
		}
	}

	return d
}
