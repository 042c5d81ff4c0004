package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds the retry loop: attempt count, starting delay,
// multiplicative growth, and a delay cap.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy matches the cadence of a public indexer: quick first
// retry, backing off to a handful of seconds.
var DefaultPolicy = Policy{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     8 * time.Second,
	Multiplier:   2.0,
}

// Delay returns the pause before attempt n (attempts count from 1; a
// delay precedes attempts 2..MaxAttempts). The sequence grows
// multiplicatively and saturates at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryError wraps the final failure after retries were exhausted or
// forbidden, preserving the classification and attempt count.
type RetryError struct {
	Class    Class
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("publish failed (%s, %d attempt(s)): %v", e.Class, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// sleeper lets tests replace the backoff pause with a recorder.
type sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn until it succeeds, fails fatally, or exhausts the
// policy. Classification happens on every failure before any retry
// decision: conflicts and fatal errors return immediately on the
// first occurrence.
func retry(ctx context.Context, policy Policy, label string, sleep sleeper, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = realSleep
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, policy.Delay(attempt-1)); err != nil {
				return &RetryError{Class: ClassFatal, Attempts: attempt - 1, Err: err}
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		class := Classify(err)
		if class != ClassRetryable {
			return &RetryError{Class: class, Attempts: attempt, Err: err}
		}
		slog.Debug("retryable publish failure",
			"job", label, "attempt", attempt, "max", policy.MaxAttempts, "error", err)
	}

	return &RetryError{Class: ClassRetryable, Attempts: policy.MaxAttempts, Err: lastErr}
}
