// Package retry provides the uniform retry policy wrapped around external
// adapter calls: bounded attempts, exponential backoff with jitter, and
// caller-supplied error classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"factreel/internal/services"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 60 * time.Second
	jitterFraction     = 0.2
)

// Options controls retry behavior for a single operation.
type Options struct {
	// MaxAttempts bounds total tries, including the first (defaults to 3).
	MaxAttempts int
	// BaseDelay is the delay before the second attempt (defaults to 2s).
	// Attempt k waits BaseDelay * 2^(k-1), with ±20% jitter.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay (defaults to 60s).
	MaxDelay time.Duration
	// PerCallTimeout bounds each individual attempt; an attempt that
	// exceeds it fails with services.ErrTimeout and is retriable. Zero
	// means no per-attempt bound.
	PerCallTimeout time.Duration
	// Classify reports whether an error is retriable. Defaults to
	// services.Retriable.
	Classify func(error) bool
	// Sleep overrides how delays are waited out (tests).
	Sleep func(context.Context, time.Duration) error
	// Rand supplies jitter randomness (tests). Defaults to math/rand.
	Rand func() float64
}

func (o Options) attempts() int {
	if o.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return o.MaxAttempts
}

func (o Options) base() time.Duration {
	if o.BaseDelay <= 0 {
		return defaultBaseDelay
	}
	return o.BaseDelay
}

func (o Options) cap() time.Duration {
	if o.MaxDelay <= 0 {
		return defaultMaxDelay
	}
	return o.MaxDelay
}

// Do runs op until it succeeds, a fatal error surfaces, or attempts exhaust.
// The last error is returned annotated with the attempt count on exhaustion.
func Do(ctx context.Context, op func(context.Context) error, opts Options) error {
	classify := opts.Classify
	if classify == nil {
		classify = services.Retriable
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := opts.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := opts.call(ctx, op)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts || !classify(err) {
			break
		}
		delay := opts.delayFor(attempt, err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	if lastErr == nil {
		return nil
	}
	if !classify(lastErr) {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempt(s): %w", attempts, lastErr)
}

// call runs one attempt under the per-call timeout, mapping a blown
// deadline onto the timeout marker so classification can retry it.
func (o Options) call(ctx context.Context, op func(context.Context) error) error {
	if o.PerCallTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, o.PerCallTimeout)
	defer cancel()
	err := op(attemptCtx)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) &&
		ctx.Err() == nil && !errors.Is(err, services.ErrTimeout) {
		return services.Wrap(services.ErrTimeout, "retry", "call",
			fmt.Sprintf("attempt exceeded %s", o.PerCallTimeout), err)
	}
	return err
}

// delayFor computes the backoff before attempt+1: base*2^(attempt-1) with
// ±20% jitter, preferring a server-provided Retry-After hint when present.
func (o Options) delayFor(attempt int, err error) time.Duration {
	if hint, ok := services.RetryAfter(err); ok && hint > 0 {
		if hint > o.cap() {
			return o.cap()
		}
		return hint
	}

	delay := o.base()
	maxDelay := o.cap()
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	roll := o.Rand
	if roll == nil {
		roll = rand.Float64
	}
	// Jitter in [1-f, 1+f].
	factor := 1 + jitterFraction*(2*roll()-1)
	jittered := time.Duration(float64(delay) * factor)
	if jittered < 0 {
		return 0
	}
	if jittered > maxDelay {
		return maxDelay
	}
	return jittered
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
