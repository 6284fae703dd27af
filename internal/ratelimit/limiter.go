package ratelimit

import (
	"context"
	"fmt"
	"time"

	"payflow/pkg/logger"

	"go.uber.org/zap"
)

// Class names for the independent admission windows.
const (
	ClassPayoutCreate = "payout-create"
	ClassLogin        = "login"
	ClassCallback     = "callback"
	ClassRefresh      = "refresh"
	ClassGeneralAuth  = "general-auth"
)

// ClassConfig is the (window, capacity) pair for one limiter class.
type ClassConfig struct {
	Window      time.Duration
	MaxRequests int
}

// Decision is returned on admission.
type Decision struct {
	Remaining int
	ResetAt   time.Time
}

// ExceededError is returned when an actor is over its window capacity.
// RetryAfter is how long until the oldest recorded request leaves the window.
type ExceededError struct {
	Class      string
	RetryAfter time.Duration
	Limit      int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: max %d requests, retry after %s",
		e.Class, e.Limit, e.RetryAfter)
}

// RetryAfterSeconds rounds up to whole seconds for the Retry-After header.
func (e *ExceededError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// WindowStore holds the per-key request timestamps of a sliding window.
// Implementations must be safe for concurrent use.
type WindowStore interface {
	// Take drops entries older than now-window for key, and if fewer than
	// limit remain records now and admits. On rejection oldest is the
	// timestamp of the oldest surviving entry.
	Take(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (admitted bool, count int, oldest time.Time, err error)
	// Peek reports the current in-window count without recording a request.
	Peek(ctx context.Context, key string, window time.Duration, now time.Time) (count int, oldest time.Time, err error)
}

// Limiter is sliding-window admission control per (actor, class).
type Limiter struct {
	store   WindowStore
	classes map[string]ClassConfig
	now     func() time.Time
}

func NewLimiter(store WindowStore, classes map[string]ClassConfig) *Limiter {
	return &Limiter{
		store:   store,
		classes: classes,
		now:     time.Now,
	}
}

func key(actorID, class string) string {
	return class + ":" + actorID
}

// Admit checks and consumes one request for actorID under class. Unknown
// classes admit unconditionally so a config gap cannot lock out traffic.
func (l *Limiter) Admit(ctx context.Context, actorID, class string) (Decision, error) {
	cfg, ok := l.classes[class]
	if !ok || cfg.MaxRequests <= 0 {
		logger.Warn("rate limit class not configured, admitting", zap.String("class", class))
		return Decision{Remaining: -1, ResetAt: l.now()}, nil
	}

	now := l.now()
	admitted, count, oldest, err := l.store.Take(ctx, key(actorID, class), cfg.Window, cfg.MaxRequests, now)
	if err != nil {
		// Fail open: the limiter protects throughput, it must not become
		// the outage itself.
		logger.Warn("rate limit store failed, admitting",
			zap.String("class", class), zap.Error(err))
		return Decision{Remaining: -1, ResetAt: now}, nil
	}

	if !admitted {
		retryAfter := oldest.Add(cfg.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{}, &ExceededError{
			Class:      class,
			RetryAfter: retryAfter,
			Limit:      cfg.MaxRequests,
		}
	}

	return Decision{
		Remaining: cfg.MaxRequests - count - 1,
		ResetAt:   now.Add(cfg.Window),
	}, nil
}

// Info reports remaining capacity without consuming a request.
func (l *Limiter) Info(ctx context.Context, actorID, class string) (Decision, error) {
	cfg, ok := l.classes[class]
	if !ok {
		return Decision{Remaining: -1}, nil
	}

	now := l.now()
	count, oldest, err := l.store.Peek(ctx, key(actorID, class), cfg.Window, now)
	if err != nil {
		return Decision{}, err
	}

	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now
	if count > 0 {
		resetAt = oldest.Add(cfg.Window)
	}
	return Decision{Remaining: remaining, ResetAt: resetAt}, nil
}
