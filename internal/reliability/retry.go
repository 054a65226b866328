package reliability

import (
	"context"
	"time"
)

// RetryPolicy retries an operation on retryable errors with capped
// exponential backoff and jitter. It is injected explicitly wherever
// persistence calls are made; there is no implicit wrapping.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Do runs op, retrying on retryable errors up to MaxAttempts. The last
// error is returned after exhaustion; non-retryable errors surface
// immediately.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(Backoff(attempt-1, p.BaseDelay, p.MaxDelay)):
			}
		}
		lastErr = op(ctx)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// Backoff computes a capped exponential backoff duration with ~10% jitter.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if cap <= 0 {
		cap = 2 * time.Second
	}

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			d = cap
			break
		}
	}

	jitterRange := d / 10
	if jitterRange > 0 {
		jitter := time.Duration(time.Now().UnixNano() % int64(jitterRange))
		d += jitter - jitterRange/2
	}
	if d < 0 {
		d = base
	}
	return d
}
