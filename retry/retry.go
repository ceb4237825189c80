package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	MaxAttempts = 3
	BaseWait    = 1 * time.Second
)

// Backoff returns the exponential backoff delay for a 1-based attempt
// number: base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}

// Jitter adds up to 10% random jitter to a delay to avoid thundering herds.
func Jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Float64()*float64(d)*0.1)
}

// Sleep waits for the given duration unless the context is cancelled first,
// in which case it returns the context's error.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func() error

// Do executes the given function up to attempts times, sleeping an
// exponentially increasing, jittered delay between tries.
func Do(ctx context.Context, attempts int, base time.Duration, f RetryableFunc) error {
	if attempts < 1 {
		attempts = MaxAttempts
	}
	var lastError error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := Sleep(ctx, Jitter(Backoff(base, attempt))); err != nil {
				return err
			}
		}
		if err := f(); err != nil {
			lastError = err
			continue
		}
		return nil
	}
	return lastError
}
