package cached

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// RateLimiter bounds provider calls: at most limit calls in flight, and
// consecutive dispatches at least period/limit apart.
// It only gates the decision to dispatch; requests run unserialised.
type RateLimiter struct {
	sem        *semaphore.Weighted
	spacing    *rate.Limiter
	dispatched atomic.Int64
}

// NewRateLimiter creates a limiter for limit requests per period.
// A non-positive limit disables limiting.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	if limit <= 0 {
		return &RateLimiter{}
	}
	l := &RateLimiter{sem: semaphore.NewWeighted(int64(limit))}
	if period > 0 {
		l.spacing = rate.NewLimiter(rate.Every(period/time.Duration(limit)), 1)
	}
	return l
}

// Acquire blocks until a call may be dispatched. Each successful Acquire
// must be paired with Release.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	if l.spacing != nil {
		if err := l.spacing.Wait(ctx); err != nil {
			l.sem.Release(1)
			return err
		}
	}
	l.dispatched.Add(1)
	return nil
}

// Release frees the concurrency slot taken by Acquire.
func (l *RateLimiter) Release() {
	if l.sem != nil {
		l.sem.Release(1)
	}
}

// Dispatched returns how many calls have passed the limiter.
func (l *RateLimiter) Dispatched() int64 {
	return l.dispatched.Load()
}
