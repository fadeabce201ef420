package llm

import (
	"context"
	"time"

	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

// retryBackoff retries fn on transient errors with capped exponential
// backoff, giving up when the context's deadline would be crossed.
// Permanent errors return immediately.
func retryBackoff(ctx context.Context, attempts int, baseDelay, maxDelay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 3
	}
	delay := baseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !apperrors.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return err
}
