package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	p := newRetryPolicy(3, 500*time.Millisecond)

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	err := p.do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, slept)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	p := newRetryPolicy(3, time.Millisecond)
	p.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	sentinel := errors.New("down")
	err := p.do(context.Background(), func() error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	p := newRetryPolicy(5, time.Millisecond)
	p.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryMinimumOneAttempt(t *testing.T) {
	p := newRetryPolicy(0, time.Millisecond)
	assert.Equal(t, 1, p.maxAttempts)
}
