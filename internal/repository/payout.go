package repository

import (
	"context"
	"errors"
	"time"

	"payflow/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateKey surfaces a storage-level uniqueness violation; the
	// caller resolves it by re-reading the winning row.
	ErrDuplicateKey = errors.New("repository: duplicate key")
	ErrNotFound     = errors.New("repository: not found")
)

// PayoutInterface defines payout persistence. The unique indexes on
// idempotency_key and reference are part of the contract, not an
// implementation detail: they serialize concurrent creates.
type PayoutInterface interface {
	Create(ctx context.Context, payout *model.Payout) error
	GetByID(ctx context.Context, id string) (*model.Payout, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Payout, error)
	GetByReference(ctx context.Context, reference string) (*model.Payout, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Payout, int64, error)
	MarkProcessing(ctx context.Context, id string, attemptAt time.Time) error
	SetProviderAck(ctx context.Context, id, providerRef, providerStatus string, retryCount int) error
	MarkFailed(ctx context.Context, id, errorCode, errorMessage string, retryCount int) error
	ApplyWebhook(ctx context.Context, update WebhookUpdate) (bool, error)
	ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]model.Payout, error)
	PingContext(ctx context.Context) error
}

// WebhookUpdate is the atomic state change a reconciled webhook applies.
type WebhookUpdate struct {
	PayoutID          string
	EventID           string
	Status            model.PayoutStatus
	ProviderReference string
	ProviderStatus    string
	ErrorCode         string
	ErrorMessage      string
	ReceivedAt        time.Time
	CorrelationID     string
}

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, payout *model.Payout) error {
	if err := r.db.WithContext(ctx).Create(payout).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id string) (*model.Payout, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *PayoutRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.Payout, error) {
	return r.getOne(ctx, "idempotency_key = ?", key)
}

func (r *PayoutRepository) GetByReference(ctx context.Context, reference string) (*model.Payout, error) {
	return r.getOne(ctx, "reference = ?", reference)
}

func (r *PayoutRepository) getOne(ctx context.Context, query string, arg any) (*model.Payout, error) {
	var payout model.Payout
	if err := r.db.WithContext(ctx).Where(query, arg).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

func (r *PayoutRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Payout, int64, error) {
	var payouts []model.Payout
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Payout{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&payouts).Error; err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

func (r *PayoutRepository) MarkProcessing(ctx context.Context, id string, attemptAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Payout{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]any{
			"status":          model.StatusProcessing,
			"last_attempt_at": attemptAt,
		}).Error
}

func (r *PayoutRepository) SetProviderAck(ctx context.Context, id, providerRef, providerStatus string, retryCount int) error {
	return r.db.WithContext(ctx).Model(&model.Payout{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"provider_reference": providerRef,
			"provider_status":    providerStatus,
			"retry_count":        retryCount,
		}).Error
}

func (r *PayoutRepository) MarkFailed(ctx context.Context, id, errorCode, errorMessage string, retryCount int) error {
	// Guarded against terminal states so a late dispatch failure cannot
	// clobber a settlement already applied by a racing webhook.
	return r.db.WithContext(ctx).Model(&model.Payout{}).
		Where("id = ? AND status IN ?", id, []model.PayoutStatus{model.StatusPending, model.StatusProcessing}).
		Updates(map[string]any{
			"status":        model.StatusFailed,
			"error_code":    errorCode,
			"error_message": errorMessage,
			"retry_count":   retryCount,
		}).Error
}

// ApplyWebhook applies a reconciled status change as one conditional
// update: it only fires when the event id differs from the last applied
// one and the payout has not reached a terminal state. Zero rows affected
// means duplicate or stale delivery; the caller reads back to tell which.
func (r *PayoutRepository) ApplyWebhook(ctx context.Context, u WebhookUpdate) (bool, error) {
	updates := map[string]any{
		"status":                u.Status,
		"provider_status":       u.ProviderStatus,
		"webhook_received_at":   u.ReceivedAt,
		"last_webhook_event_id": u.EventID,
	}
	if u.ProviderReference != "" {
		updates["provider_reference"] = u.ProviderReference
	}
	if u.CorrelationID != "" {
		updates["correlation_id"] = u.CorrelationID
	}
	if u.Status == model.StatusFailed {
		updates["error_code"] = u.ErrorCode
		updates["error_message"] = u.ErrorMessage
	}

	res := r.db.WithContext(ctx).Model(&model.Payout{}).
		Where("id = ?", u.PayoutID).
		Where("(last_webhook_event_id IS NULL OR last_webhook_event_id = '' OR last_webhook_event_id <> ?)", u.EventID).
		Where("status NOT IN ?", []model.PayoutStatus{model.StatusSucceeded, model.StatusFailed, model.StatusCancelled}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListStuckProcessing returns payouts acknowledged by the provider but
// without a settling webhook since olderThan, for the status sweeper.
func (r *PayoutRepository) ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]model.Payout, error) {
	var payouts []model.Payout
	err := r.db.WithContext(ctx).
		Where("status = ? AND provider_reference <> '' AND updated_at < ?", model.StatusProcessing, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

func (r *PayoutRepository) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
