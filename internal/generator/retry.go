package generator

import (
	"context"
	"time"
)

// RetryPolicy retries a call with exponential backoff: before attempt n+1 it
// waits BaseDelay * 2^n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetry is three attempts with 2s and 4s pauses.
var DefaultRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

// Delay is the pause after the given number of failed attempts.
func (p RetryPolicy) Delay(failed int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(failed))
}

// Run calls fn until it succeeds or the attempts run out, returning the last error.
// onFailure, when set, sees every failed attempt.
func (p RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) (string, error), onFailure func(attempt int, err error)) (string, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
