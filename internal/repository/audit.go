package repository

import (
	"context"

	"payflow/internal/model"

	"gorm.io/gorm"
)

// AuditInterface records payout state transitions for traceability.
type AuditInterface interface {
	Create(ctx context.Context, audit *model.PayoutAudit) error
	ListByPayout(ctx context.Context, payoutID string) ([]model.PayoutAudit, error)
}

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, audit *model.PayoutAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

func (r *AuditRepository) ListByPayout(ctx context.Context, payoutID string) ([]model.PayoutAudit, error) {
	var audits []model.PayoutAudit
	err := r.db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("created_at ASC").
		Find(&audits).Error
	return audits, err
}
