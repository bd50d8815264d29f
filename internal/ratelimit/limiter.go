package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between two source requests.
const DefaultInterval = 100 * time.Millisecond

// Limiter spaces out permits globally across every caller sharing it.
// Waiters reserve slots in arrival order on the token bucket, so nobody
// starves; the order in which blocked callers wake up is not guaranteed.
type Limiter struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// New builds a limiter granting one permit per interval. A non-positive
// interval disables limiting.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Acquire blocks until a permit is available. It only fails when ctx is
// done before the permit would be granted.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Wait refuses up front when the deadline is closer than the next slot.
		return fmt.Errorf("rate limiter: %w", context.DeadlineExceeded)
	}
	return nil
}

// Interval reports the configured spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
