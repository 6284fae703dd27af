package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"payflow/internal/dto/req"
	"payflow/internal/dto/resp"
	"payflow/internal/ratelimit"
	"payflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PayoutHandler struct {
	svc *service.PayoutService
}

func NewPayoutHandler(svc *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{svc: svc}
}

// CreatePayout handles POST /v1/payouts. The Idempotency-Key header is
// mandatory: the same key always yields the same payout.
func (h *PayoutHandler) CreatePayout(c *gin.Context) {
	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
		return
	}

	var body req.CreatePayoutReq
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
		return
	}

	metadata := ""
	if len(body.Metadata) > 0 {
		raw, err := json.Marshal(body.Metadata)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata"})
			return
		}
		metadata = string(raw)
	}

	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	payout, created, err := h.svc.Create(c.Request.Context(), service.CreatePayoutInput{
		UserID:         op.UserID,
		Amount:         amount,
		Currency:       body.Currency,
		Metadata:       metadata,
		IdempotencyKey: idemKey,
		CorrelationID:  c.GetString("TraceID"),
	})
	if err != nil {
		h.writeCreateError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, resp.FromPayout(payout))
}

func (h *PayoutHandler) writeCreateError(c *gin.Context, err error) {
	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &exceeded):
		c.Header("X-RateLimit-Limit", strconv.Itoa(exceeded.Limit))
		c.Header("X-RateLimit-Remaining", "0")
		c.Header("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too Many Requests",
			"retry_after": exceeded.RetryAfterSeconds(),
		})
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCurrency),
		errors.Is(err, service.ErrMissingIdemKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payout creation failed"})
	}
}

func (h *PayoutHandler) GetPayout(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	payout, err := h.svc.GetByID(c.Request.Context(), c.Param("id"), op.UserID)
	if err != nil {
		if errors.Is(err, service.ErrPayoutNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payout not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, resp.FromPayout(payout))
}

func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var query req.ListPayoutsReq
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payouts, total, err := h.svc.List(c.Request.Context(), op.UserID, query.Offset, query.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	items := make([]resp.PayoutResp, 0, len(payouts))
	for i := range payouts {
		items = append(items, resp.FromPayout(&payouts[i]))
	}
	c.JSON(http.StatusOK, resp.PayoutListResp{Total: total, Items: items})
}

func (h *PayoutHandler) GetPayoutAudits(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	audits, err := h.svc.Audits(c.Request.Context(), c.Param("id"), op.UserID)
	if err != nil {
		if errors.Is(err, service.ErrPayoutNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payout not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	items := make([]resp.PayoutAuditResp, 0, len(audits))
	for _, a := range audits {
		items = append(items, resp.FromAudit(a))
	}
	c.JSON(http.StatusOK, items)
}

func (h *PayoutHandler) HealthCheck(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
