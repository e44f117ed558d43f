package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantRetrier(cfg RetryConfig) (*Retrier, *[]time.Duration) {
	r := NewRetrier(cfg)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestTransientRetriesThenSucceeds(t *testing.T) {
	r, slept := instantRetrier(RetryConfig{MaxAttempts: 5, BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second})

	calls := 0
	err := r.Do(context.Background(), "release", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("rpc timeout: %w", ErrTransient)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestExhaustedAttemptsReturnLastError(t *testing.T) {
	r, slept := instantRetrier(RetryConfig{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond, BackoffMax: 15 * time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), "release", func(ctx context.Context) error {
		calls++
		return ErrTransient
	})
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, calls)
	// Backoff doubled but capped at BackoffMax.
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, *slept)
}

func TestPermanentFailureNeverRetried(t *testing.T) {
	r, slept := instantRetrier(RetryConfig{MaxAttempts: 5})

	calls := 0
	err := r.Do(context.Background(), "escrow", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("escrow account frozen: %w", ErrPermanent)
	})
	require.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestUnclassifiedErrorNotRetried(t *testing.T) {
	r, _ := instantRetrier(RetryConfig{MaxAttempts: 5})

	boom := errors.New("boom")
	calls := 0
	err := r.Do(context.Background(), "confirm", func(ctx context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestContextCancellationStopsRetry(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 5, BackoffBase: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, "release", func(ctx context.Context) error {
		return ErrTransient
	})
	require.ErrorIs(t, err, context.Canceled)
}
