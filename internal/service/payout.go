package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"payflow/internal/metrics"
	"payflow/internal/model"
	"payflow/internal/provider"
	"payflow/internal/ratelimit"
	"payflow/internal/repository"
	"payflow/internal/retry"
	"payflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
	ErrMissingIdemKey  = errors.New("idempotency key is required")
	ErrPayoutNotFound  = errors.New("payout not found")
)

// CreatePayoutInput carries one payout request after transport decoding.
type CreatePayoutInput struct {
	UserID         string
	Amount         decimal.Decimal
	Currency       string
	Metadata       string
	IdempotencyKey string
	CorrelationID  string
}

// PayoutService owns the payout lifecycle: admission, idempotent creation,
// provider dispatch with bounded retries, and read access.
type PayoutService struct {
	payouts  repository.PayoutInterface
	audits   repository.AuditInterface
	provider provider.Client
	limiter  *ratelimit.Limiter
	observer metrics.PayoutObserver

	policy      retry.Policy
	callTimeout time.Duration
	now         func() time.Time
}

func NewPayoutService(
	payouts repository.PayoutInterface,
	audits repository.AuditInterface,
	client provider.Client,
	limiter *ratelimit.Limiter,
	observer metrics.PayoutObserver,
	policy retry.Policy,
	callTimeout time.Duration,
) *PayoutService {
	if policy.Retryable == nil {
		policy.Retryable = provider.IsRetryable
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &PayoutService{
		payouts:     payouts,
		audits:      audits,
		provider:    client,
		limiter:     limiter,
		observer:    observer,
		policy:      policy,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// NewReference mints a client-facing payout reference.
func NewReference() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "PAY_" + hex[:16]
}

// Create is the idempotent entry point. The same idempotency key always
// resolves to the same payout row, whether the duplicate is detected by
// lookup or by losing the insert race. created reports whether this call
// made the row.
func (s *PayoutService) Create(ctx context.Context, in CreatePayoutInput) (*model.Payout, bool, error) {
	if err := validateInput(in); err != nil {
		return nil, false, err
	}

	if s.limiter != nil {
		if _, err := s.limiter.Admit(ctx, in.UserID, ratelimit.ClassPayoutCreate); err != nil {
			var exceeded *ratelimit.ExceededError
			if errors.As(err, &exceeded) {
				s.observer.RecordRateLimitRejection(exceeded.Class)
			}
			return nil, false, err
		}
	}

	// Fast path: the key has been seen before.
	if existing, err := s.payouts.GetByIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
		return nil, false, err
	} else if existing != nil {
		logger.Info("idempotent replay, returning existing payout",
			zap.String("payout_id", existing.ID),
			zap.String("idempotency_key", in.IdempotencyKey))
		return existing, false, nil
	}

	payout := &model.Payout{
		ID:             uuid.New().String(),
		Reference:      NewReference(),
		UserID:         in.UserID,
		Amount:         in.Amount,
		Currency:       strings.ToUpper(in.Currency),
		Status:         model.StatusPending,
		IdempotencyKey: in.IdempotencyKey,
		Metadata:       in.Metadata,
		CorrelationID:  in.CorrelationID,
	}

	if err := s.payouts.Create(ctx, payout); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost the insert race: the unique index picked a winner, read
			// it back and return that row.
			winner, rerr := s.payouts.GetByIdempotencyKey(ctx, in.IdempotencyKey)
			if rerr != nil {
				return nil, false, rerr
			}
			if winner == nil {
				return nil, false, err
			}
			return winner, false, nil
		}
		return nil, false, err
	}

	s.audit(ctx, payout.ID, "", model.StatusPending, "", in.CorrelationID)

	// Dispatch must survive the caller going away: a disconnect mid-flight
	// would otherwise abort the retry loop and could strand the row between
	// the provider ack and its persistence. Per-call timeouts still apply
	// inside the loop.
	s.dispatch(context.WithoutCancel(ctx), payout)

	fresh, err := s.payouts.GetByID(ctx, payout.ID)
	if err != nil || fresh == nil {
		return payout, true, nil
	}
	s.observer.RecordPayoutCreated(string(fresh.Status))
	return fresh, true, nil
}

// dispatch sends the payout to the provider under the retry policy and
// records the terminal outcome of the attempt loop. A dispatch failure
// never fails the create call; the row carries the error state.
func (s *PayoutService) dispatch(ctx context.Context, payout *model.Payout) {
	attemptAt := s.now()
	if err := s.payouts.MarkProcessing(ctx, payout.ID, attemptAt); err != nil {
		logger.Error("mark processing failed",
			zap.String("payout_id", payout.ID), zap.Error(err))
		return
	}
	s.audit(ctx, payout.ID, model.StatusPending, model.StatusProcessing, "", payout.CorrelationID)

	attempts := 0
	ack, err := retry.Do(ctx, s.policy, func(ctx context.Context) (provider.Ack, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		ack, err := s.provider.CreatePayout(callCtx, provider.CreateRequest{
			PayoutID:  payout.ID,
			Amount:    payout.Amount.StringFixed(2),
			Currency:  payout.Currency,
			Reference: payout.Reference,
			Metadata:  payout.Metadata,
		})
		if err != nil {
			s.observer.RecordDispatchAttempt("failure")
			return provider.Ack{}, err
		}
		s.observer.RecordDispatchAttempt("success")
		return ack, nil
	})

	if err != nil {
		code, message := classifyDispatchError(err)
		logger.Warn("provider dispatch failed",
			zap.String("payout_id", payout.ID),
			zap.String("error_code", code),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if uerr := s.payouts.MarkFailed(ctx, payout.ID, code, message, attempts); uerr != nil {
			logger.Error("mark failed failed",
				zap.String("payout_id", payout.ID), zap.Error(uerr))
		}
		s.audit(ctx, payout.ID, model.StatusProcessing, model.StatusFailed, code, payout.CorrelationID)
		return
	}

	if err := s.payouts.SetProviderAck(ctx, payout.ID, ack.ProviderReference, ack.ProviderStatus, attempts); err != nil {
		logger.Error("record provider ack failed",
			zap.String("payout_id", payout.ID), zap.Error(err))
		return
	}
	logger.Info("payout dispatched",
		zap.String("payout_id", payout.ID),
		zap.String("provider_reference", ack.ProviderReference),
		zap.Int("attempts", attempts))
}

// classifyDispatchError maps a dispatch failure to the stable error code
// stored on the payout row.
func classifyDispatchError(err error) (code, message string) {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return "retries_exhausted", exhausted.Error()
	}
	var perr *provider.Error
	if errors.As(err, &perr) {
		return string(perr.Kind), perr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", "provider call timed out"
	}
	return "internal", err.Error()
}

func (s *PayoutService) GetByID(ctx context.Context, id, userID string) (*model.Payout, error) {
	payout, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout == nil || (userID != "" && payout.UserID != userID) {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

func (s *PayoutService) List(ctx context.Context, userID string, offset, limit int) ([]model.Payout, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.payouts.ListByUser(ctx, userID, offset, limit)
}

func (s *PayoutService) Audits(ctx context.Context, id, userID string) ([]model.PayoutAudit, error) {
	if _, err := s.GetByID(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.audits.ListByPayout(ctx, id)
}

// Ping reports storage health for the health endpoint.
func (s *PayoutService) Ping(ctx context.Context) error {
	return s.payouts.PingContext(ctx)
}

func (s *PayoutService) audit(ctx context.Context, payoutID string, from, to model.PayoutStatus, code, traceID string) {
	entry := &model.PayoutAudit{
		PayoutID:   payoutID,
		FromStatus: from,
		ToStatus:   to,
		ErrorCode:  code,
		Actor:      GetOperator(ctx),
		TraceID:    traceID,
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		logger.Error("audit write failed",
			zap.String("payout_id", payoutID), zap.Error(err))
	}
}

func validateInput(in CreatePayoutInput) error {
	if in.IdempotencyKey == "" {
		return ErrMissingIdemKey
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if len(in.Currency) != 3 {
		return ErrInvalidCurrency
	}
	return nil
}
