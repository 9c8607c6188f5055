package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/banabets/else/common/guard"
)

// ServiceError is returned for every failed generation call.
type ServiceError struct {
	Provider   string
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsServiceError reports whether err is a generation failure.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

func newServiceError(provider, op string, err error) *ServiceError {
	se := &ServiceError{Provider: provider, Op: op, Err: err}

	var oaErr *openai.Error
	var anErr *anthropic.Error
	switch {
	case errors.As(err, &oaErr):
		se.StatusCode = oaErr.StatusCode
	case errors.As(err, &anErr):
		se.StatusCode = anErr.StatusCode
	}
	return se
}

func statusCode(err error) (int, bool) {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode, true
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode, true
	}
	return 0, false
}

// IsRetryable classifies a raw provider error: rate limits, server errors and
// network failures are retried; cancellation, timeouts and 4xx are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || guard.IsTimeout(err) {
		slog.DebugContext(ctx, "llm error not retryable: cancelled or timed out")
		return false
	}

	if code, ok := statusCode(err); ok {
		switch {
		case code == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", code)
			return true
		case code >= 500:
			slog.WarnContext(ctx, "llm server error, will retry", "status_code", code)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", code)
			return false
		}
	}

	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}

func retryOptions(ctx context.Context, maxRetries int) guard.RetryOptions {
	return guard.RetryOptions{
		MaxRetries: maxRetries,
		ShouldRetry: func(err error) bool {
			return IsRetryable(ctx, err)
		},
	}
}
