package service

import (
	"context"
	"time"

	"payflow/internal/metrics"
	"payflow/internal/model"
	"payflow/internal/provider"
	"payflow/internal/repository"
	"payflow/pkg/logger"

	"go.uber.org/zap"
)

// WebhookResult is the reconciliation outcome reported back to the
// provider. Processed means the event matched a known payout; Duplicate
// means it was already applied (or arrived after a terminal state) and
// changed nothing.
type WebhookResult struct {
	Processed bool               `json:"processed"`
	Duplicate bool               `json:"duplicate"`
	PayoutID  string             `json:"payout_id,omitempty"`
	Status    model.PayoutStatus `json:"status,omitempty"`
}

// WebhookService reconciles asynchronous provider events against payout
// rows with at-most-once application per event id.
type WebhookService struct {
	payouts  repository.PayoutInterface
	audits   repository.AuditInterface
	observer metrics.PayoutObserver
	now      func() time.Time
}

func NewWebhookService(payouts repository.PayoutInterface, audits repository.AuditInterface, observer metrics.PayoutObserver) *WebhookService {
	return &WebhookService{
		payouts:  payouts,
		audits:   audits,
		observer: observer,
		now:      time.Now,
	}
}

// Process applies one provider event. Unknown references are reported as
// unprocessed but never as an error: the provider must not retry them.
func (s *WebhookService) Process(ctx context.Context, event provider.WebhookEvent) (WebhookResult, error) {
	payout, err := s.payouts.GetByReference(ctx, event.Reference)
	if err != nil {
		return WebhookResult{}, err
	}
	if payout == nil {
		logger.Warn("webhook for unknown reference",
			zap.String("event_id", event.EventID),
			zap.String("reference", event.Reference))
		s.observer.RecordWebhook("unknown_reference")
		return WebhookResult{Processed: false}, nil
	}

	status := model.ParsePayoutStatus(event.Status)

	applied, err := s.payouts.ApplyWebhook(ctx, repository.WebhookUpdate{
		PayoutID:          payout.ID,
		EventID:           event.EventID,
		Status:            status,
		ProviderReference: event.ProviderReference,
		ProviderStatus:    event.Status,
		ErrorCode:         event.ErrorCode,
		ErrorMessage:      event.ErrorMessage,
		ReceivedAt:        s.now(),
		CorrelationID:     event.CorrelationID,
	})
	if err != nil {
		return WebhookResult{}, err
	}

	if !applied {
		// Zero rows: either this exact event was already applied, or the
		// payout settled first and the event is stale. Both read as a
		// duplicate to the sender.
		fresh, rerr := s.payouts.GetByID(ctx, payout.ID)
		if rerr != nil {
			return WebhookResult{}, rerr
		}
		if fresh == nil {
			fresh = payout
		}
		logger.Info("webhook not applied",
			zap.String("event_id", event.EventID),
			zap.String("payout_id", fresh.ID),
			zap.String("status", string(fresh.Status)),
			zap.Bool("same_event", fresh.LastWebhookEventID == event.EventID))
		s.observer.RecordWebhook("duplicate")
		return WebhookResult{
			Processed: true,
			Duplicate: true,
			PayoutID:  fresh.ID,
			Status:    fresh.Status,
		}, nil
	}

	s.auditTransition(ctx, payout, status, event)
	s.observer.RecordWebhook("applied")
	logger.Info("webhook applied",
		zap.String("event_id", event.EventID),
		zap.String("payout_id", payout.ID),
		zap.String("from", string(payout.Status)),
		zap.String("to", string(status)))

	return WebhookResult{
		Processed: true,
		PayoutID:  payout.ID,
		Status:    status,
	}, nil
}

func (s *WebhookService) auditTransition(ctx context.Context, payout *model.Payout, to model.PayoutStatus, event provider.WebhookEvent) {
	entry := &model.PayoutAudit{
		PayoutID:   payout.ID,
		FromStatus: payout.Status,
		ToStatus:   to,
		ErrorCode:  event.ErrorCode,
		Actor:      "webhook",
		TraceID:    event.CorrelationID,
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		logger.Error("audit write failed",
			zap.String("payout_id", payout.ID), zap.Error(err))
	}
}
