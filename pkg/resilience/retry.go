package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how often and how long an operation is retried.
type RetryPolicy struct {
	Attempts       int
	AttemptTimeout time.Duration // per attempt; zero means no extra deadline
	Budget         time.Duration // across all attempts; zero means unbounded
	BaseDelay      time.Duration // linear backoff step
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	return p
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, or the policy
// is exhausted. An open circuit delays the next attempt by its RetryAfter.
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	policy = policy.withDefaults()

	if policy.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Budget)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			break
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt == policy.Attempts {
			break
		}

		wait := time.Duration(attempt) * policy.BaseDelay
		var openErr *CircuitOpenError
		if errors.As(err, &openErr) && openErr.RetryAfter > 0 {
			wait = openErr.RetryAfter
		}
		if !sleepContext(ctx, wait) {
			break
		}
	}

	if lastErr == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("operation failed without explicit error")
	}
	return lastErr
}

// sleepContext waits for d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
