// Package guard bounds calls to external services with a hard timeout.
//
// Nothing in the agent may stall a cycle indefinitely: every call to the social
// platform and to the generation backends goes through Do, which cancels the
// call's context once the limit elapses and returns ErrTimeout.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// ErrTimeout is returned when a call exceeds its time limit.
var ErrTimeout = timeout.ErrExceeded

// Do runs fn with a context that is cancelled after limit. A non-positive limit
// runs fn directly with ctx.
func Do[T any](ctx context.Context, limit time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if limit <= 0 {
		return fn(ctx)
	}

	policy := timeout.NewBuilder[T](limit).Build()
	return failsafe.With[T](policy).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[T]) (T, error) {
			return fn(exec.Context())
		})
}

// Run is Do for calls that only return an error.
func Run(ctx context.Context, limit time.Duration, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, limit, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryOptions configures DoWithRetry. Zero delays fall back to 500ms base and
// 5s max backoff.
type RetryOptions struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	ShouldRetry func(err error) bool
}

// DoWithRetry is Do with a retry policy wrapped around it. Each attempt gets its
// own limit; the error of the last attempt is returned unchanged.
func DoWithRetry[T any](ctx context.Context, limit time.Duration, opts RetryOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	if opts.MaxRetries <= 0 {
		return Do(ctx, limit, fn)
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = max(opts.BaseDelay, 5*time.Second)
	}

	builder := retrypolicy.NewBuilder[T]().
		WithBackoff(opts.BaseDelay, opts.MaxDelay).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure()
	if opts.ShouldRetry != nil {
		builder = builder.HandleIf(func(_ T, err error) bool {
			return err != nil && opts.ShouldRetry(err)
		})
	}

	policies := []failsafe.Policy[T]{builder.Build()}
	if limit > 0 {
		policies = append(policies, timeout.NewBuilder[T](limit).Build())
	}

	return failsafe.With[T](policies...).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[T]) (T, error) {
			return fn(exec.Context())
		})
}

// IsTimeout reports whether err came from an exceeded limit.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
