package retry

import (
	"context"
	"time"
)

// DoWithRetry executes fn up to attempts times with exponential backoff.
// It stops early if the context is canceled.
func DoWithRetry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err = fn(); err == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// DoWithBackoff executes fn until it succeeds, doubling the delay between
// attempts up to maxDelay. It only gives up when the context is canceled,
// so the caller decides the lifetime, not an attempt count.
func DoWithBackoff(ctx context.Context, baseDelay, maxDelay time.Duration, fn func() error) error {
	delay := baseDelay

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
