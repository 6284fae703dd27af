package api

import (
	"payflow/internal/metrics"
	"payflow/internal/middleware"
	"payflow/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(payoutHandler *PayoutHandler, webhookHandler *WebhookHandler, authHandler *AuthHandler, limiter *ratelimit.Limiter, env string) *gin.Engine {
	rateLimitHandler := NewRateLimitHandler(limiter)

	r := gin.New()

	// Global Middleware
	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", payoutHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth Routes (Public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login",
			middleware.RateLimitMiddleware(limiter, ratelimit.ClassLogin, nil),
			authHandler.Login)
		auth.POST("/refresh",
			middleware.RateLimitMiddleware(limiter, ratelimit.ClassRefresh, nil),
			authHandler.Refresh)
	}

	// Auth Routes (Protected)
	authProtected := r.Group("/v1/auth")
	authProtected.Use(
		middleware.JWTMiddleware(true),
		middleware.RateLimitMiddleware(limiter, ratelimit.ClassGeneralAuth, nil),
	)
	{
		authProtected.GET("/me", authHandler.GetProfile)
		authProtected.POST("/logout", authHandler.Logout)
	}

	// Provider Callback. IP-limited; signature verification happens in
	// the handler against the raw body.
	r.POST("/webhooks/payments",
		middleware.RateLimitMiddleware(limiter, ratelimit.ClassCallback, nil),
		webhookHandler.HandlePaymentEvent)

	// Protected Routes
	// Enable Dev-Pass=true for debugging
	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(env != "prod"))
	{
		// Payout creation is limited per user inside the service, not here:
		// the window must key on the authenticated actor, not the IP.
		protected.POST("/payouts", payoutHandler.CreatePayout)
		protected.GET("/payouts", payoutHandler.ListPayouts)
		protected.GET("/payouts/:id", payoutHandler.GetPayout)
		protected.GET("/payouts/:id/audits", payoutHandler.GetPayoutAudits)
		protected.GET("/ratelimit", rateLimitHandler.GetStatus)
	}
	return r
}
