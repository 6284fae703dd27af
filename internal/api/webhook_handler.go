package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"payflow/internal/dto/resp"
	"payflow/internal/provider"
	"payflow/internal/service"
	"payflow/internal/webhook"
	"payflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	reconciler *service.WebhookService
	verifier   *webhook.Verifier
}

func NewWebhookHandler(reconciler *service.WebhookService, verifier *webhook.Verifier) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, verifier: verifier}
}

// HandlePaymentEvent handles POST /webhooks/payments. Verification runs
// against the raw body before any JSON decoding. Duplicates and unknown
// references still get a 200 so the provider stops retrying.
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := c.GetHeader("X-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Signature header is required"})
		return
	}
	sigType := c.GetHeader("X-Signature-Type")
	if sigType == "" {
		sigType = webhook.SignatureTypeHMACSHA256
	}

	if _, err := h.verifier.Verify(body, signature, sigType, c.GetHeader("X-Timestamp")); err != nil {
		logger.Warn("webhook rejected",
			zap.String("ip", c.ClientIP()),
			zap.Error(err))
		if errors.Is(err, webhook.ErrUnsupportedType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "verification failed"})
		return
	}

	var event provider.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if event.EventID == "" || event.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and reference are required"})
		return
	}
	if event.CorrelationID == "" {
		event.CorrelationID = c.GetString("TraceID")
	}

	result, err := h.reconciler.Process(c.Request.Context(), event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}

	c.JSON(http.StatusOK, resp.WebhookAckResp{
		Success:       result.Processed,
		Duplicate:     result.Duplicate,
		CorrelationID: c.GetString("TraceID"),
	})
}
