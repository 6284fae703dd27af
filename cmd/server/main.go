package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payflow/internal/api"
	"payflow/internal/config"
	"payflow/internal/metrics"
	"payflow/internal/model"
	"payflow/internal/provider"
	"payflow/internal/ratelimit"
	"payflow/internal/repository"
	"payflow/internal/retry"
	"payflow/internal/service"
	"payflow/internal/webhook"
	"payflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// 2. Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Infrastructure
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// 4. Initialize Repositories
	payoutRepo := repository.NewPayoutRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// 5. Initialize Services
	observer := metrics.NewPrometheusObserver()
	limiter := ratelimit.NewLimiter(buildWindowStore(cfg, rdb), limiterClasses(cfg))

	notifier := provider.NewNotifier(cfg.Provider.WebhookURL, cfg.Webhook.Secret, cfg.Provider.NotifyRatePerSec)
	defer notifier.Close()
	client := provider.NewMock(mockConfig(cfg.Provider), notifier)

	policy := retry.Policy{
		MaxRetries:      cfg.Retry.MaxRetries,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		ExponentialBase: cfg.Retry.ExponentialBase,
		Jitter:          cfg.Retry.Jitter,
		Retryable:       provider.IsRetryable,
	}

	payoutSvc := service.NewPayoutService(payoutRepo, auditRepo, client, limiter, observer, policy, cfg.Provider.CallTimeout)
	webhookSvc := service.NewWebhookService(payoutRepo, auditRepo, observer)
	service.SetSigningKey([]byte(cfg.Auth.SigningKey))
	authSvc := service.NewAuthService(rdb, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	verifier := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.MaxAge)

	// 6. Initialize & Start Workers (Background Tasks)
	sweeper := service.NewStatusSweeper(payoutRepo, client, time.Minute, 5*time.Minute)
	go func() {
		logger.Info("starting status sweeper")
		sweeper.Run(ctx)
	}()

	// 7. Setup HTTP Server
	r := api.RegisterRoutes(
		api.NewPayoutHandler(payoutSvc),
		api.NewWebhookHandler(webhookSvc, verifier),
		api.NewAuthHandler(authSvc),
		limiter,
		cfg.Server.Environment,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	// 8. Start Server
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown Signal Wait
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	// Create a deadline to wait for current requests to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Signal all workers to stop
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	// TranslateError maps driver duplicate-entry errors to
	// gorm.ErrDuplicatedKey, which the idempotency path depends on.
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Simple auto-migrate for dev convenience
	// In production, you might want to use a proper migration tool like golang-migrate
	err = db.AutoMigrate(
		&model.Payout{},
		&model.PayoutAudit{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func buildWindowStore(cfg *config.Config, rdb *redis.Client) ratelimit.WindowStore {
	if cfg.RateLimit.UseRedis {
		return ratelimit.NewRedisStore(rdb)
	}
	return ratelimit.NewMemoryStore(cfg.RateLimit.PurgeAbove)
}

func limiterClasses(cfg *config.Config) map[string]ratelimit.ClassConfig {
	classes := make(map[string]ratelimit.ClassConfig, len(cfg.RateLimit.Classes))
	for name, cl := range cfg.RateLimit.Classes {
		classes[name] = ratelimit.ClassConfig{Window: cl.Window, MaxRequests: cl.MaxRequests}
	}
	return classes
}

func mockConfig(cfg config.ProviderConfig) provider.MockConfig {
	mc := provider.DefaultMockConfig()
	mc.Weights = map[provider.Outcome]float64{
		provider.OutcomeSuccess:      cfg.SuccessWeight,
		provider.OutcomeBadRequest:   cfg.BadRequestWeight,
		provider.OutcomeUnauthorized: cfg.UnauthorizedWeight,
		provider.OutcomeRateLimited:  cfg.RateLimitedWeight,
		provider.OutcomeInternal:     cfg.InternalWeight,
		provider.OutcomeTimeout:      cfg.TimeoutWeight,
	}
	if cfg.WebhookMinDelay > 0 {
		mc.WebhookMinDelay = cfg.WebhookMinDelay
	}
	if cfg.WebhookMaxDelay > 0 {
		mc.WebhookMaxDelay = cfg.WebhookMaxDelay
	}
	return mc
}
