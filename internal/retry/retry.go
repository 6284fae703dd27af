package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"payflow/pkg/logger"

	"go.uber.org/zap"
)

// Policy bounds an exponential-backoff-with-jitter retry loop.
type Policy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
	// Retryable classifies an error; nil means nothing is retryable.
	Retryable func(error) bool
}

// DefaultPolicy mirrors the dispatch defaults: up to 5 retries, 1s base,
// 30s cap, doubling with jitter.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxRetries:      5,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		Retryable:       retryable,
	}
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Delay computes the backoff before retrying attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// Do runs op up to MaxRetries+1 times. Non-retryable errors propagate
// immediately; success returns at once. Backoff sleeps respect ctx.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return result, nil
		}
		lastErr = err

		if p.Retryable == nil || !p.Retryable(err) {
			logger.Warn("non-retryable error, giving up", zap.Error(err))
			return zero, err
		}

		if attempt < p.MaxRetries {
			delay := p.Delay(attempt)
			logger.Warn("retryable error, backing off",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", p.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	logger.Error("all retry attempts exhausted",
		zap.Int("attempts", p.MaxRetries+1), zap.Error(lastErr))
	return zero, &ExhaustedError{Attempts: p.MaxRetries + 1, LastErr: lastErr}
}
