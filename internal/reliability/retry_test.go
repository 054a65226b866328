package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("flaky: %w", ErrConnection)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoSurfacesLastErrorAfterExhaustion(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, ErrTimeout)
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Do() error = %v, want ErrTimeout", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoDoesNotRetryDuplicateKey(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("insert: %w", ErrDuplicateKey)
	})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Do() error = %v, want ErrDuplicateKey", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry)", calls)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fastPolicy(3).Do(ctx, func(context.Context) error {
		return fmt.Errorf("down: %w", ErrConnection)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("x: %w", ErrConnection), true},
		{fmt.Errorf("x: %w", ErrTimeout), true},
		{fmt.Errorf("x: %w", ErrOperation), true},
		{fmt.Errorf("x: %w", ErrDuplicateKey), false},
		{fmt.Errorf("x: %w", ErrNotFound), false},
		{fmt.Errorf("x: %w", ErrValidation), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestBackoffIsCapped(t *testing.T) {
	base := 10 * time.Millisecond
	cap := 80 * time.Millisecond
	for attempt := 0; attempt < 12; attempt++ {
		d := Backoff(attempt, base, cap)
		// Jitter can push the value at most 10% above the cap.
		if d > cap+cap/10 {
			t.Fatalf("Backoff(%d) = %v, exceeds cap %v", attempt, d, cap)
		}
		if d <= 0 {
			t.Fatalf("Backoff(%d) = %v, want positive", attempt, d)
		}
	}
}
