package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"payflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is a simulated provider response class.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeBadRequest   Outcome = "bad_request"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeInternal     Outcome = "internal"
	OutcomeTimeout      Outcome = "timeout"
)

// MockConfig tunes the simulated provider.
type MockConfig struct {
	// Weights select the outcome of each CreatePayout call; they are
	// normalized, so any positive scale works.
	Weights map[Outcome]float64
	// Processing delay range per call.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Webhook delivery delay range after a successful create.
	WebhookMinDelay time.Duration
	WebhookMaxDelay time.Duration
}

func DefaultMockConfig() MockConfig {
	return MockConfig{
		Weights: map[Outcome]float64{
			OutcomeSuccess:      0.85,
			OutcomeBadRequest:   0.05,
			OutcomeUnauthorized: 0.02,
			OutcomeRateLimited:  0.03,
			OutcomeInternal:     0.04,
			OutcomeTimeout:      0.01,
		},
		MinDelay:        50 * time.Millisecond,
		MaxDelay:        250 * time.Millisecond,
		WebhookMinDelay: 2 * time.Second,
		WebhookMaxDelay: 10 * time.Second,
	}
}

// WebhookEvent is the asynchronous confirmation the provider delivers
// after acknowledging a payout.
type WebhookEvent struct {
	EventID           string `json:"event_id"`
	Reference         string `json:"reference"`
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	Timestamp         int64  `json:"timestamp"`
	CorrelationID     string `json:"correlation_id,omitempty"`
}

// Mock simulates a third-party payment provider: weighted synchronous
// outcomes plus a fire-and-forget webhook after successful creates.
type Mock struct {
	cfg      MockConfig
	notifier *Notifier

	mu     sync.Mutex
	forced map[string]Outcome
	rng    *rand.Rand
}

func NewMock(cfg MockConfig, notifier *Notifier) *Mock {
	return &Mock{
		cfg:      cfg,
		notifier: notifier,
		forced:   make(map[string]Outcome),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Force pins the outcome for a specific payout id, used by tests and the
// loadtest tool to make behavior deterministic.
func (m *Mock) Force(payoutID string, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced[payoutID] = outcome
}

func (m *Mock) pickOutcome(payoutID string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.forced[payoutID]; ok {
		return o
	}

	total := 0.0
	for _, w := range m.cfg.Weights {
		total += w
	}
	if total <= 0 {
		return OutcomeSuccess
	}

	r := m.rng.Float64() * total
	for _, o := range []Outcome{
		OutcomeSuccess, OutcomeBadRequest, OutcomeUnauthorized,
		OutcomeRateLimited, OutcomeInternal, OutcomeTimeout,
	} {
		r -= m.cfg.Weights[o]
		if r <= 0 {
			return o
		}
	}
	return OutcomeSuccess
}

func (m *Mock) delay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	span := m.cfg.MaxDelay - m.cfg.MinDelay
	if span <= 0 {
		return m.cfg.MinDelay
	}
	return m.cfg.MinDelay + time.Duration(m.rng.Int63n(int64(span)))
}

func (m *Mock) CreatePayout(ctx context.Context, req CreateRequest) (Ack, error) {
	select {
	case <-time.After(m.delay()):
	case <-ctx.Done():
		return Ack{}, &Error{Kind: KindTimeout, Message: "provider call timed out"}
	}

	outcome := m.pickOutcome(req.PayoutID)
	logger.Debug("mock provider outcome",
		zap.String("payout_id", req.PayoutID),
		zap.String("outcome", string(outcome)))

	switch outcome {
	case OutcomeBadRequest:
		return Ack{}, &Error{Kind: KindBadRequest, Message: "invalid payout parameters provided"}
	case OutcomeUnauthorized:
		return Ack{}, &Error{Kind: KindUnauthorized, Message: "invalid API credentials"}
	case OutcomeRateLimited:
		return Ack{}, &Error{Kind: KindRateLimited, Message: "too many requests, please retry later"}
	case OutcomeInternal:
		return Ack{}, &Error{Kind: KindInternal, Message: "internal server error occurred"}
	case OutcomeTimeout:
		// Simulate an unresponsive provider: block until the caller's
		// deadline fires.
		<-ctx.Done()
		return Ack{}, &Error{Kind: KindTimeout, Message: "request timeout"}
	}

	ack := Ack{
		ProviderReference: "mock_ref_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16],
		ProviderStatus:    "processing",
	}

	if m.notifier != nil {
		m.notifier.Schedule(WebhookEvent{
			EventID:           fmt.Sprintf("evt_%s", uuid.New().String()),
			Reference:         req.Reference,
			ProviderReference: ack.ProviderReference,
			Status:            "succeeded",
			Timestamp:         time.Now().Unix(),
		}, m.webhookDelay())
	}

	return ack, nil
}

func (m *Mock) webhookDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	span := m.cfg.WebhookMaxDelay - m.cfg.WebhookMinDelay
	if span <= 0 {
		return m.cfg.WebhookMinDelay
	}
	return m.cfg.WebhookMinDelay + time.Duration(m.rng.Int63n(int64(span)))
}

func (m *Mock) GetPayoutStatus(ctx context.Context, payoutID, providerReference string) (StatusResult, error) {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return StatusResult{}, &Error{Kind: KindTimeout, Message: "provider call timed out"}
	}

	m.mu.Lock()
	statuses := []string{"processing", "succeeded", "failed"}
	status := statuses[m.rng.Intn(len(statuses))]
	m.mu.Unlock()

	return StatusResult{
		PayoutID:          payoutID,
		ProviderReference: providerReference,
		Status:            status,
		CheckedAt:         time.Now(),
	}, nil
}
