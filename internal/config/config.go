package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

// Config holds all configuration for the orchestrator binaries.
type Config struct {
	Env      string `env:"ENV,default=development"`
	Port     string `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	AMQPURL     string `env:"AMQP_URL"`

	TransportURL     string        `env:"TRANSPORT_URL"`
	TransportToken   string        `env:"TRANSPORT_TOKEN"`
	TransportTimeout time.Duration `env:"TRANSPORT_TIMEOUT,default=15s"`
	ReplyTimeout     time.Duration `env:"REPLY_TIMEOUT,default=10s"`
	// EventToken authenticates live-state events posted over HTTP.
	EventToken string `env:"TRANSPORT_EVENT_TOKEN"`

	// RunScheduler lets the server drive campaigns in-process; turn it off
	// when cmd/worker runs separately.
	RunScheduler         bool          `env:"RUN_SCHEDULER,default=true"`
	SchedulerInterval    time.Duration `env:"SCHEDULER_INTERVAL,default=2s"`
	SchedulerConcurrency int           `env:"SCHEDULER_CONCURRENCY,default=8"`
	DefaultTimezone      string        `env:"DEFAULT_TIMEZONE,default=Asia/Jakarta"`
	WebhookLogRetention  time.Duration `env:"WEBHOOK_LOG_RETENTION,default=720h"`
	// ClaimLease is how long a crashed tick's claimed recipients wait before
	// another tick takes them over.
	ClaimLease time.Duration `env:"CLAIM_LEASE,default=10m"`

	Webhook WebhookSecrets
	Rate    RateLimits
}

// WebhookSecrets are the per-platform authenticity secrets.
type WebhookSecrets struct {
	WhatsApp         string `env:"WEBHOOK_SECRET_WHATSAPP"`
	Telegram         string `env:"WEBHOOK_SECRET_TELEGRAM"`
	WhatsAppBusiness string `env:"WEBHOOK_SECRET_WHATSAPP_BUSINESS"`
}

func (w WebhookSecrets) For(p model.Platform) string {
	switch p {
	case model.PlatformWhatsApp:
		return w.WhatsApp
	case model.PlatformTelegram:
		return w.Telegram
	case model.PlatformWhatsAppBusiness:
		return w.WhatsAppBusiness
	}
	return ""
}

// RateLimits are provider sending caps per platform.
type RateLimits struct {
	WhatsAppHourly         int           `env:"RATE_WHATSAPP_HOURLY,default=200"`
	WhatsAppDaily          int           `env:"RATE_WHATSAPP_DAILY,default=1000"`
	TelegramHourly         int           `env:"RATE_TELEGRAM_HOURLY,default=1500"`
	TelegramDaily          int           `env:"RATE_TELEGRAM_DAILY,default=20000"`
	WhatsAppBusinessHourly int           `env:"RATE_WHATSAPP_BUSINESS_HOURLY,default=1000"`
	WhatsAppBusinessDaily  int           `env:"RATE_WHATSAPP_BUSINESS_DAILY,default=10000"`
	BackoffBase            time.Duration `env:"RATE_BACKOFF_BASE,default=30s"`
	BackoffMax             time.Duration `env:"RATE_BACKOFF_MAX,default=1h"`
}

// Caps returns the hourly and daily cap for a platform.
func (r RateLimits) Caps(p model.Platform) (hourly, daily int) {
	switch p {
	case model.PlatformWhatsApp:
		return r.WhatsAppHourly, r.WhatsAppDaily
	case model.PlatformTelegram:
		return r.TelegramHourly, r.TelegramDaily
	case model.PlatformWhatsAppBusiness:
		return r.WhatsAppBusinessHourly, r.WhatsAppBusinessDaily
	}
	return 0, 0
}

// Load reads configuration from the environment, loading .env first when present.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}

	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required in production")
		}
		if cfg.TransportURL == "" {
			return nil, fmt.Errorf("TRANSPORT_URL is required in production")
		}
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}
	if cfg.SchedulerConcurrency < 1 {
		cfg.SchedulerConcurrency = 1
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
