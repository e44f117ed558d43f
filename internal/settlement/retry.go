package settlement

import (
	"context"
	"errors"
	"log"
	"time"
)

// RetryConfig bounds the exponential backoff applied to transient settlement
// failures before the task is escalated to its Failed state.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryConfig matches the config package defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  30 * time.Second,
	}
}

// Retrier runs settlement operations under the retry policy.
type Retrier struct {
	cfg    RetryConfig
	logger *log.Logger

	// sleep is swappable in tests.
	sleep func(context.Context, time.Duration) error
}

// NewRetrier builds a retrier; zero-valued config fields fall back to
// defaults.
func NewRetrier(cfg RetryConfig) *Retrier {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	return &Retrier{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[SETTLEMENT] ", log.LstdFlags),
		sleep:  sleepCtx,
	}
}

// Do runs op, retrying on ErrTransient with exponential backoff up to
// MaxAttempts. ErrPermanent and context cancellation stop immediately. The
// returned error is the last failure when attempts are exhausted.
func (r *Retrier) Do(ctx context.Context, name string, op func(context.Context) error) error {
	backoff := r.cfg.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) || !errors.Is(err, ErrTransient) {
			return err
		}
		lastErr = err
		r.logger.Printf("%s attempt %d/%d failed: %v", name, attempt, r.cfg.MaxAttempts, err)

		if attempt == r.cfg.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > r.cfg.BackoffMax {
			backoff = r.cfg.BackoffMax
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
