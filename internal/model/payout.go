package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	StatusPending    PayoutStatus = "pending"
	StatusProcessing PayoutStatus = "processing"
	StatusSucceeded  PayoutStatus = "succeeded"
	StatusFailed     PayoutStatus = "failed"
	StatusCancelled  PayoutStatus = "cancelled"
)

// Terminal reports whether no further transitions may be applied.
func (s PayoutStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ParsePayoutStatus maps a provider status string to the internal enum.
// Unrecognized values map to pending.
func ParsePayoutStatus(s string) PayoutStatus {
	switch PayoutStatus(s) {
	case StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled:
		return PayoutStatus(s)
	default:
		return StatusPending
	}
}

// Payout is a single outbound money-movement record tracked from request
// to settlement. Rows are never deleted.
type Payout struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	Reference string `json:"reference" gorm:"size:64;not null;uniqueIndex"`
	UserID    string `json:"user_id" gorm:"size:36;index"`

	Amount   decimal.Decimal `json:"amount" gorm:"type:decimal(18,2);not null"`
	Currency string          `json:"currency" gorm:"size:3;not null;index"`

	Status PayoutStatus `json:"status" gorm:"size:16;not null;index;default:pending"`

	ProviderReference string `json:"provider_reference" gorm:"size:128;index"`
	ProviderStatus    string `json:"provider_status" gorm:"size:64"`

	// IdempotencyKey collapses repeated client requests to one row; the
	// unique index is the serialization point for concurrent creates.
	IdempotencyKey string `json:"idempotency_key" gorm:"size:128;not null;uniqueIndex"`

	ErrorCode    string `json:"error_code,omitempty" gorm:"size:64"`
	ErrorMessage string `json:"error_message,omitempty" gorm:"type:text"`

	Metadata string `json:"metadata,omitempty" gorm:"type:text"`

	// LastWebhookEventID is the most recently applied provider event id,
	// used to drop webhook redeliveries.
	LastWebhookEventID string `json:"last_webhook_event_id,omitempty" gorm:"size:128"`

	RetryCount        int        `json:"retry_count" gorm:"default:0"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	WebhookReceivedAt *time.Time `json:"webhook_received_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	CorrelationID string `json:"correlation_id,omitempty" gorm:"size:36"`
}
