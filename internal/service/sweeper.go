package service

import (
	"context"
	"time"

	"payflow/internal/model"
	"payflow/internal/provider"
	"payflow/internal/repository"
	"payflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusSweeper periodically re-queries the provider for payouts that were
// acknowledged but never settled by webhook, and applies any terminal
// status it finds through the same at-most-once path webhooks use.
type StatusSweeper struct {
	payouts   repository.PayoutInterface
	provider  provider.Client
	interval  time.Duration
	stuckFor  time.Duration
	batchSize int
}

func NewStatusSweeper(payouts repository.PayoutInterface, client provider.Client, interval, stuckFor time.Duration) *StatusSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if stuckFor <= 0 {
		stuckFor = 5 * time.Minute
	}
	return &StatusSweeper{
		payouts:   payouts,
		provider:  client,
		interval:  interval,
		stuckFor:  stuckFor,
		batchSize: 50,
	}
}

func (w *StatusSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logger.Info("status sweeper started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("status sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *StatusSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.stuckFor)
	stuck, err := w.payouts.ListStuckProcessing(ctx, cutoff, w.batchSize)
	if err != nil {
		logger.Error("failed to list stuck payouts", zap.Error(err))
		return
	}

	for _, payout := range stuck {
		logger.Debug("re-querying stuck payout",
			zap.String("payout_id", payout.ID),
			zap.String("provider_reference", payout.ProviderReference))

		result, err := w.provider.GetPayoutStatus(ctx, payout.ID, payout.ProviderReference)
		if err != nil {
			logger.Warn("provider status query failed",
				zap.String("payout_id", payout.ID), zap.Error(err))
			continue
		}

		status := model.ParsePayoutStatus(result.Status)
		if !status.Terminal() {
			continue
		}

		// Synthesize an event id so the conditional update stays
		// at-most-once even if a real webhook lands concurrently.
		applied, err := w.payouts.ApplyWebhook(ctx, repository.WebhookUpdate{
			PayoutID:       payout.ID,
			EventID:        "sweep_" + uuid.New().String(),
			Status:         status,
			ProviderStatus: result.Status,
			ReceivedAt:     result.CheckedAt,
		})
		if err != nil {
			logger.Error("failed to settle stuck payout",
				zap.String("payout_id", payout.ID), zap.Error(err))
			continue
		}
		if applied {
			logger.Info("stuck payout settled by sweep",
				zap.String("payout_id", payout.ID),
				zap.String("status", string(status)))
		}
	}
}
