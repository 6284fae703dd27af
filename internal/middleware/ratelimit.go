package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"payflow/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// KeyFunc extracts the actor id a request is limited under.
type KeyFunc func(*gin.Context) string

// ByClientIP keys the window on the caller's IP, for unauthenticated
// surfaces like login and the webhook callback.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimitMiddleware enforces one sliding-window class per route group.
// Store failures admit the request; the limiter never becomes the outage.
func RateLimitMiddleware(limiter *ratelimit.Limiter, class string, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByClientIP
	}
	return func(c *gin.Context) {
		decision, err := limiter.Admit(c.Request.Context(), key(c), class)
		if err != nil {
			var exceeded *ratelimit.ExceededError
			if errors.As(err, &exceeded) {
				c.Header("X-RateLimit-Limit", strconv.Itoa(exceeded.Limit))
				c.Header("X-RateLimit-Remaining", "0")
				c.Header("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":       "Too Many Requests",
					"retry_after": exceeded.RetryAfterSeconds(),
				})
				return
			}
			// Unexpected limiter error: admit.
			c.Next()
			return
		}

		if decision.Remaining >= 0 {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}
		c.Next()
	}
}
