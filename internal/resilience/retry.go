package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Func is any outbound call taking a single argument.
type Func[A, T any] func(ctx context.Context, arg A) (T, error)

// Policy is retry with exponential backoff. Attempt n (0-based) waits
// InitialDelay * BackoffFactor^n before the next try.
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(ctx context.Context, err error) bool
}

// DefaultPolicy retries three times after 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
	}
}

func (p Policy) delay(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(attempt)))
}

// Retry calls fn up to MaxRetries+1 times. The final failure is wrapped in an
// ExternalServiceError that still unwraps to the error fn returned.
func Retry[T any](ctx context.Context, p Policy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var err error

	for attempt := 0; ; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if p.Retryable != nil && !p.Retryable(ctx, err) {
			return zero, &ExternalServiceError{Service: name, Attempts: attempt + 1, Err: err}
		}
		if attempt >= p.MaxRetries {
			break
		}

		backoff := p.delay(attempt)
		slog.WarnContext(ctx, "outbound call failed, retrying",
			"service", name,
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"backoff_ms", backoff.Milliseconds(),
			"error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}

	slog.ErrorContext(ctx, "outbound call failed after retries",
		"service", name,
		"attempts", p.MaxRetries+1,
		"error", err)
	return zero, &ExternalServiceError{Service: name, Attempts: p.MaxRetries + 1, Err: err}
}

// WithRetry wraps fn so every call goes through Retry.
func WithRetry[A, T any](p Policy, name string, fn Func[A, T]) Func[A, T] {
	return func(ctx context.Context, arg A) (T, error) {
		return Retry(ctx, p, name, func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		})
	}
}
