// Copyright 2025 Certen Protocol
//
// Timeout / Retry Policy
//
// A composable cooperative policy over an operation factory: per-attempt
// timeout, total timeout, inter-attempt delay, bounded attempts, and a
// caller-supplied retryable predicate. Operations receive a context; the
// policy cancels it on timeout, and cancelling the caller's context aborts
// the in-flight attempt with no background work left behind.

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout reports that a policy-level deadline fired.
var ErrTimeout = errors.New("operation timed out")

// Policy aggregates the optional limits. A zero duration or count disables
// the corresponding limit; a nil RetryOnly retries every error.
type Policy struct {
	TotalTimeout   time.Duration
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
	MaxAttempts    int
	RetryOnly      func(error) bool
}

// retryable applies the predicate with its nil default.
func (p Policy) retryable(err error) bool {
	if p.RetryOnly == nil {
		return true
	}
	return p.RetryOnly(err)
}

// Run invokes op until it succeeds or a limit fires. The operation is a
// factory in the sense that it is re-invoked fresh on every attempt.
func (p Policy) Run(ctx context.Context, op func(ctx context.Context) error) error {
	if p.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.TotalTimeout, ErrTimeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		err := p.runAttempt(ctx, op)
		if err == nil {
			return nil
		}
		// The total timeout preempts even a running attempt.
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return fmt.Errorf("aborted after %d attempts: %w (last error: %v)", attempt, ctxErr, err)
		}
		if !p.retryable(err) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		if p.RetryDelay > 0 {
			select {
			case <-time.After(p.RetryDelay):
			case <-ctx.Done():
				return fmt.Errorf("%w during retry delay (last error: %v)", context.Cause(ctx), err)
			}
		}
	}
}

func (p Policy) runAttempt(ctx context.Context, op func(ctx context.Context) error) error {
	attemptCtx := ctx
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeoutCause(ctx, p.AttemptTimeout, ErrTimeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- op(attemptCtx) }()
	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		// The attempt is abandoned; its context is cancelled so it unwinds
		// on its own.
		return context.Cause(attemptCtx)
	}
}

// Do runs a value-returning operation under the policy.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Run(ctx, func(ctx context.Context) error {
		value, err := op(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
