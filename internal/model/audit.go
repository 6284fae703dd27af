package model

import "time"

// PayoutAudit records a single status transition for a payout.
type PayoutAudit struct {
	ID         int64        `json:"id" gorm:"primaryKey"`
	PayoutID   string       `json:"payout_id" gorm:"size:36;index"`
	FromStatus PayoutStatus `json:"from_status" gorm:"size:16"`
	ToStatus   PayoutStatus `json:"to_status" gorm:"size:16"`
	ErrorCode  string       `json:"error_code,omitempty" gorm:"size:64"`
	Actor      string       `json:"actor" gorm:"size:64"`
	TraceID    string       `json:"trace_id" gorm:"size:36;index"`
	CreatedAt  time.Time    `json:"created_at" gorm:"index"`
}
