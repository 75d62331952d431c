// Package retry provides an injectable retry policy with exponential backoff.
// A policy with MaxAttempts of zero retries until its context is cancelled.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Unbounded disables the attempt ceiling.
const Unbounded = 0

// NonRetryableError marks an error that must end a retry loop immediately.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so Do stops without further attempts.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Policy describes how many attempts to make and how long to wait between them.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// Fixed returns an unbounded policy waiting the same delay between attempts.
func Fixed(delay time.Duration) Policy {
	return Policy{
		MaxAttempts:  Unbounded,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1,
	}
}

// Capped returns a bounded exponential policy.
func Capped(attempts int, initial, max time.Duration) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   2,
		Jitter:       true,
	}
}

// Allows reports whether another attempt may follow the given number of
// failed attempts.
func (p Policy) Allows(failed int) bool {
	return p.MaxAttempts == Unbounded || failed < p.MaxAttempts
}

// Backoff returns the delay after the given number of failed attempts (1-based).
func (p Policy) Backoff(failed int) time.Duration {
	delay := p.InitialDelay
	if delay <= 0 {
		return 0
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	for i := 1; i < failed; i++ {
		next := time.Duration(float64(delay) * mult)
		if p.MaxDelay > 0 && next > p.MaxDelay {
			delay = p.MaxDelay
			break
		}
		if next < delay {
			break
		}
		delay = next
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter && delay >= 4 {
		delay += rand.N(delay / 4)
	}
	return delay
}

// Wait sleeps for Backoff(failed) or until ctx is done.
func (p Policy) Wait(ctx context.Context, failed int) error {
	d := p.Backoff(failed)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is cancelled.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	return p.DoWhen(ctx, nil, fn)
}

// DoWhen is Do restricted to errors for which retryable returns true. A nil
// retryable retries every error not marked NonRetryable.
func (p Policy) DoWhen(ctx context.Context, retryable func(error) bool, fn func() error) error {
	for failed := 0; ; {
		err := fn()
		if err == nil {
			return nil
		}
		if IsNonRetryable(err) || (retryable != nil && !retryable(err)) {
			return err
		}

		failed++
		if !p.Allows(failed) {
			return fmt.Errorf("retry failed after %d attempts: %w", failed, err)
		}
		if werr := p.Wait(ctx, failed); werr != nil {
			return fmt.Errorf("retry cancelled after %d attempts: %w", failed, errors.Join(err, werr))
		}
	}
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	err := p.DoWhen(ctx, retryable, func() error {
		var inner error
		result, inner = fn()
		return inner
	})
	return result, err
}
