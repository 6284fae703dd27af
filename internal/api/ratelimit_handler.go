package api

import (
	"net/http"

	"payflow/internal/ratelimit"
	"payflow/internal/service"

	"github.com/gin-gonic/gin"
)

type RateLimitHandler struct {
	limiter *ratelimit.Limiter
}

func NewRateLimitHandler(limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// GetStatus reports the caller's remaining payout-create capacity without
// consuming a request.
func (h *RateLimitHandler) GetStatus(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	if op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	class := c.DefaultQuery("class", ratelimit.ClassPayoutCreate)
	decision, err := h.limiter.Info(c.Request.Context(), op.UserID, class)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit status unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"class":     class,
		"remaining": decision.Remaining,
		"reset_at":  decision.ResetAt.Unix(),
	})
}
