package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// withRetry runs fn up to attempts times with exponential backoff starting at
// delay. Errors wrapped with backoff.Permanent stop the retries and are
// returned unwrapped.
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = delay
	bo.MaxInterval = 10 * delay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		return struct{}{}, fn(attempt)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(attempts)))
	return err
}
