// Package retry applies an explicit retry policy at external call sites.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// BackoffFunc returns the delay before the given retry (attempt starts at 1).
type BackoffFunc func(attempt int) time.Duration

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff computes the wait between tries. Nil means no wait.
	Backoff BackoffFunc

	// Retryable decides whether an error is worth another try.
	// Nil retries every error.
	Retryable func(error) bool

	// Clock is used for waiting. Nil uses the real clock.
	Clock clockwork.Clock

	// OnRetry is called before each wait, for logging.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Exponential returns a capped exponential backoff: base, base*factor, ...
// never exceeding maxDelay.
func Exponential(base time.Duration, factor float64, maxDelay time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := float64(base)
		for i := 1; i < attempt; i++ {
			d *= factor
			if maxDelay > 0 && d >= float64(maxDelay) {
				return maxDelay
			}
		}
		if maxDelay > 0 && time.Duration(d) > maxDelay {
			return maxDelay
		}
		return time.Duration(d)
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs op until it succeeds, returns a non-retryable error, the context
// ends, or MaxAttempts is reached.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(delay):
			}
		}
	}

	if attempts == 1 {
		return err
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}
