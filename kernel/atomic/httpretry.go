package atomic

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryBackoff returns an exponential-with-jitter backoff seeded from the
// config's retryDelay, allowing up to maxAttempts retries after the first
// try (maxAttempts+1 tries in all). This reuses the
// teacher's RetryPolicy shape (base delay, exponential growth, jitter)
// from graph/policy.go's computeBackoff rather than spec.md §4.9's literal
// "wait retryDelay and retry" wording taken as a flat interval, per the
// documented decision to carry the teacher's retry formula forward.
func retryBackoff(delay time.Duration, maxAttempts int) backoff.BackOff {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxInterval = delay * 16
	b.RandomizationFactor = 0.25
	b.Multiplier = 2
	return backoff.WithMaxRetries(b, uint64(maxAttempts))
}
