package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how a caller re-runs a transfer after contention.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// delay returns a full-jitter backoff in [0, min(MaxDelay, BaseDelay*2^attempt)).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := p.BaseDelay << attempt
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}

// retry runs fn until it succeeds, returns an error retryable rejects, or the policy
// is exhausted. The last error is returned unchanged.
func retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(attempt int) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(attempt)
		if err == nil || !retryable(err) || attempt >= policy.attempts() {
			return err
		}
		if sleepErr := sleepWithContext(ctx, policy.delay(attempt-1)); sleepErr != nil {
			return err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
