package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure for retry and error-code mapping.
type ErrorKind string

const (
	KindBadRequest   ErrorKind = "bad_request"
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInternal     ErrorKind = "internal"
	KindTimeout      ErrorKind = "timeout"
)

// Error is a classified failure from the payment provider.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure is transient. Malformed requests
// and credential problems will not heal on retry.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindInternal, KindTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable classifies any dispatch error: transient provider failures
// and call timeouts retry, everything else is terminal.
func IsRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// CreateRequest is the outbound payout creation call.
type CreateRequest struct {
	PayoutID  string
	Amount    string
	Currency  string
	Reference string
	Metadata  string
}

// Ack is the provider's synchronous acknowledgment. Final settlement
// arrives later by webhook.
type Ack struct {
	ProviderReference string
	ProviderStatus    string
}

// StatusResult is the reply to an explicit status query.
type StatusResult struct {
	PayoutID          string
	ProviderReference string
	Status            string
	CheckedAt         time.Time
}

// Client abstracts the payment provider. Implementations must honor ctx
// deadlines on every call.
type Client interface {
	CreatePayout(ctx context.Context, req CreateRequest) (Ack, error)
	GetPayoutStatus(ctx context.Context, payoutID, providerReference string) (StatusResult, error)
}
