package rpc

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the width of the random spread as a fraction of the delay;
	// 0.2 spreads each delay over ±10%.
	Jitter float64
}

// DefaultBackoff mirrors the provider's documented retry guidance.
var DefaultBackoff = Backoff{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
	Jitter:      0.2,
}

// Delay returns the wait before retry number attempt (0-based). rnd yields
// values in [0, 1); nil uses math/rand.
func (b Backoff) Delay(attempt int, rnd func() float64) time.Duration {
	if rnd == nil {
		rnd = rand.Float64
	}

	delay := b.BaseDelay
	for i := 0; i < attempt && delay < b.MaxDelay; i++ {
		delay *= 2
	}
	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	jitter := float64(delay) * b.Jitter * (rnd() - 0.5)
	return delay + time.Duration(jitter)
}

// Retry runs op until it succeeds, returns an error retryable rejects, or the
// schedule runs out. onRetry is called before each sleep. The last error is
// returned unchanged.
func Retry(
	ctx context.Context,
	clock Clock,
	policy Backoff,
	retryable func(error) bool,
	onRetry func(attempt int, delay time.Duration, err error),
	op func(context.Context) error,
) error {
	if clock == nil {
		clock = SystemClock()
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) || attempt == attempts-1 {
			return err
		}

		delay := policy.Delay(attempt, nil)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}
		if sErr := clock.SleepUntil(ctx, clock.Now().Add(delay)); sErr != nil {
			return sErr
		}
	}
	return err
}
