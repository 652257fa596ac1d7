package rpc

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between outgoing requests. Callers
// reserve their slot under the limiter's lock and sleep outside it, so N
// concurrent callers at R req/s finish no sooner than (N-1)/R.
type Limiter struct {
	limiter *rate.Limiter
	clock   Clock
}

// NewLimiter creates a limiter allowing rps requests per second with no burst.
func NewLimiter(rps float64, clock Clock) *Limiter {
	if clock == nil {
		clock = SystemClock()
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		clock:   clock,
	}
}

// Wait blocks until the caller may issue its request.
func (l *Limiter) Wait(ctx context.Context) error {
	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limiter rejected reservation")
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	if err := l.clock.SleepUntil(ctx, now.Add(delay)); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

// Interval is the minimum spacing between two requests.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}
