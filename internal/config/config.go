package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN            string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL            string `env:"RABBITMQ_URL,required=true"`
	RedisURL               string `env:"REDIS_URL,required=true"`
	RateLimitPerSec        int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	HighLaneConcurrency    int    `env:"HIGH_LANE_CONCURRENCY,default=12"`
	DefaultLaneConcurrency int    `env:"DEFAULT_LANE_CONCURRENCY,default=4"`
	WebhookConcurrency     int    `env:"WEBHOOK_CONCURRENCY,default=8"`
	ProviderTimeoutSec     int    `env:"PROVIDER_TIMEOUT_SEC,default=10"`
	DedupTTLMin            int    `env:"DEDUP_TTL_MIN,default=30"`
	StaleSendingMin        int    `env:"STALE_SENDING_MIN,default=5"`
	SchedulerScanSec       int    `env:"SCHEDULER_SCAN_SEC,default=5"`
	APIPort                int    `env:"API_PORT,default=8080"`
	LogLevel               string `env:"LOG_LEVEL,default=info"`

	SMSProviderURL      string `env:"SMS_PROVIDER_URL"`
	EmailProviderURL    string `env:"EMAIL_PROVIDER_URL"`
	WhatsAppProviderURL string `env:"WHATSAPP_PROVIDER_URL"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMin) * time.Minute
}

func (c *Config) StaleSendingThreshold() time.Duration {
	return time.Duration(c.StaleSendingMin) * time.Minute
}

func (c *Config) SchedulerScanInterval() time.Duration {
	return time.Duration(c.SchedulerScanSec) * time.Second
}
