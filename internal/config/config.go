package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	// SigningKey is the HS256 secret for access and refresh tokens. Set
	// PAYFLOW_AUTH_SIGNING_KEY outside dev.
	SigningKey      string        `mapstructure:"signing_key"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// ClassLimit is one sliding-window rate-limit class: at most MaxRequests
// admissions per Window.
type ClassLimit struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type RateLimitConfig struct {
	// UseRedis switches window state from the in-process store to Redis so
	// limits hold across instances.
	UseRedis   bool                  `mapstructure:"use_redis"`
	Classes    map[string]ClassLimit `mapstructure:"classes"`
	PurgeAbove int                   `mapstructure:"purge_above"`
}

type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	ExponentialBase float64       `mapstructure:"exponential_base"`
	Jitter          bool          `mapstructure:"jitter"`
}

type ProviderConfig struct {
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// WebhookURL is where the mock provider delivers status callbacks.
	WebhookURL         string        `mapstructure:"webhook_url"`
	WebhookMinDelay    time.Duration `mapstructure:"webhook_min_delay"`
	WebhookMaxDelay    time.Duration `mapstructure:"webhook_max_delay"`
	NotifyRatePerSec   float64       `mapstructure:"notify_rate_per_sec"`
	SuccessWeight      float64       `mapstructure:"success_weight"`
	BadRequestWeight   float64       `mapstructure:"bad_request_weight"`
	UnauthorizedWeight float64       `mapstructure:"unauthorized_weight"`
	RateLimitedWeight  float64       `mapstructure:"rate_limited_weight"`
	InternalWeight     float64       `mapstructure:"internal_weight"`
	TimeoutWeight      float64       `mapstructure:"timeout_weight"`
}

type WebhookConfig struct {
	Secret string        `mapstructure:"secret"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("PAYFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", ":8080")

	viper.SetDefault("auth.signing_key", "payflow-dev-signing-key")
	viper.SetDefault("auth.access_token_ttl", "15m")
	viper.SetDefault("auth.refresh_token_ttl", "168h")

	viper.SetDefault("ratelimit.use_redis", false)
	viper.SetDefault("ratelimit.purge_above", 1000)
	viper.SetDefault("ratelimit.classes.payout-create.window", "60s")
	viper.SetDefault("ratelimit.classes.payout-create.max_requests", 10)
	viper.SetDefault("ratelimit.classes.login.window", "15m")
	viper.SetDefault("ratelimit.classes.login.max_requests", 5)
	viper.SetDefault("ratelimit.classes.callback.window", "5m")
	viper.SetDefault("ratelimit.classes.callback.max_requests", 10)
	viper.SetDefault("ratelimit.classes.refresh.window", "5m")
	viper.SetDefault("ratelimit.classes.refresh.max_requests", 20)
	viper.SetDefault("ratelimit.classes.general-auth.window", "5m")
	viper.SetDefault("ratelimit.classes.general-auth.max_requests", 30)

	viper.SetDefault("retry.max_retries", 5)
	viper.SetDefault("retry.base_delay", "1s")
	viper.SetDefault("retry.max_delay", "30s")
	viper.SetDefault("retry.exponential_base", 2.0)
	viper.SetDefault("retry.jitter", true)

	viper.SetDefault("provider.call_timeout", "30s")
	viper.SetDefault("provider.webhook_url", "http://127.0.0.1:8080/webhooks/payments")
	viper.SetDefault("provider.webhook_min_delay", "2s")
	viper.SetDefault("provider.webhook_max_delay", "10s")
	viper.SetDefault("provider.notify_rate_per_sec", 20.0)
	viper.SetDefault("provider.success_weight", 0.85)
	viper.SetDefault("provider.bad_request_weight", 0.05)
	viper.SetDefault("provider.unauthorized_weight", 0.02)
	viper.SetDefault("provider.rate_limited_weight", 0.03)
	viper.SetDefault("provider.internal_weight", 0.04)
	viper.SetDefault("provider.timeout_weight", 0.01)

	viper.SetDefault("webhook.max_age", "5m")
}
