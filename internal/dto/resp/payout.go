package resp

import (
	"time"

	"payflow/internal/model"
)

type PayoutResp struct {
	ID                string     `json:"id"`
	Reference         string     `json:"reference"`
	UserID            string     `json:"user_id"`
	Amount            string     `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	ProviderReference string     `json:"provider_reference,omitempty"`
	ErrorCode         string     `json:"error_code,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	RetryCount        int        `json:"retry_count"`
	WebhookReceivedAt *time.Time `json:"webhook_received_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func FromPayout(p *model.Payout) PayoutResp {
	return PayoutResp{
		ID:                p.ID,
		Reference:         p.Reference,
		UserID:            p.UserID,
		Amount:            p.Amount.StringFixed(2),
		Currency:          p.Currency,
		Status:            string(p.Status),
		ProviderReference: p.ProviderReference,
		ErrorCode:         p.ErrorCode,
		ErrorMessage:      p.ErrorMessage,
		RetryCount:        p.RetryCount,
		WebhookReceivedAt: p.WebhookReceivedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

type PayoutListResp struct {
	Total int64        `json:"total"`
	Items []PayoutResp `json:"items"`
}

type PayoutAuditResp struct {
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

func FromAudit(a model.PayoutAudit) PayoutAuditResp {
	return PayoutAuditResp{
		FromStatus: string(a.FromStatus),
		ToStatus:   string(a.ToStatus),
		ErrorCode:  a.ErrorCode,
		Actor:      a.Actor,
		CreatedAt:  a.CreatedAt,
	}
}

type WebhookAckResp struct {
	Success       bool   `json:"success"`
	Duplicate     bool   `json:"duplicate"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
