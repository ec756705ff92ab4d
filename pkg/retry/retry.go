// Package retry provides the bounded retry primitive used for transient
// operational failures (container not yet ready, remote host not yet
// reachable).
//
// The policy is deliberately simple: a fixed interval between attempts and a
// hard attempt budget. Missing-prerequisite failures must not be retried;
// callers signal that with Abort.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int

	// Interval is the fixed delay between attempts.
	Interval time.Duration
}

// Validate reports whether the policy is usable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("retry: interval must not be negative, got %s", p.Interval)
	}
	return nil
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// IsExhausted reports whether err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

type abortError struct{ err error }

func (a *abortError) Error() string { return a.err.Error() }
func (a *abortError) Unwrap() error { return a.err }

// Abort wraps err so Do stops immediately instead of burning the remaining
// attempt budget. The original error is returned unwrapped.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &abortError{err: err}
}

// Do runs op until it succeeds, the attempt budget is exhausted, op aborts,
// or ctx is cancelled. The first success terminates the loop immediately; no
// remaining attempts are waited out.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var abort *abortError
		if errors.As(err, &abort) {
			return abort.err
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Interval):
		}
	}

	return &ExhaustedError{Attempts: policy.MaxAttempts, LastErr: lastErr}
}
