package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func CorsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders,
		"Authorization", "Idempotency-Key", "X-Trace-ID", "X-Correlation-ID")
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
