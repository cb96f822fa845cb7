package executor

import (
	"context"
	"fmt"
	"time"
)

// retryPolicy retries an operation a fixed number of times with a fixed
// delay between attempts. The sleep function is injectable for tests.
type retryPolicy struct {
	maxAttempts int
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(maxAttempts int, delay time.Duration) retryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return retryPolicy{
		maxAttempts: maxAttempts,
		delay:       delay,
		sleep:       sleepCtx,
	}
}

// do runs fn until it succeeds or attempts are exhausted. The last error is
// wrapped with the attempt count.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt < p.maxAttempts {
			if err := p.sleep(ctx, p.delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("executor: %d attempts failed: %w", p.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
