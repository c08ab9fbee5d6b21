// Package backoff computes retry delays for failed job executions.
// Policies are stateless and safe for concurrent use.
package backoff

import (
	"time"
)

// Policy is a capped exponential backoff with a hard attempt ceiling.
// Delay(n) = min(Base * 2^n, Cap).
type Policy struct {
	// Base is the delay after the first failure.
	Base time.Duration

	// Cap bounds the delay regardless of attempt count.
	Cap time.Duration

	// MaxAttempts is the number of failed executions after which a job is
	// promoted to terminal failed instead of being rescheduled.
	MaxAttempts int
}

// Default returns the policy used by the queue unless overridden:
// 1s base, 60s cap, 5 attempts.
func Default() Policy {
	return Policy{
		Base:        1 * time.Second,
		Cap:         60 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns how long to wait before the next execution, given the
// number of failed attempts so far. Attempt counts at or below zero get
// the base delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.Base
	}

	// Shifting past 62 bits would overflow time.Duration long before the
	// cap comparison runs.
	if attempt >= 62 {
		return p.Cap
	}

	d := p.Base << uint(attempt)
	if d <= 0 || (p.Cap > 0 && d > p.Cap) {
		return p.Cap
	}
	return d
}

// Exhausted reports whether a job with the given failed-attempt count has
// used up its retry budget.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
