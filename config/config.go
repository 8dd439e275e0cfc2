package config

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	MySQLDSN     string        `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/campaigns?parseTime=true"`
	MySQLMaxOpen int           `env:"MYSQL_MAX_OPEN" envDefault:"10"`
	MySQLMaxIdle int           `env:"MYSQL_MAX_IDLE" envDefault:"5"`
	MySQLMaxLife time.Duration `env:"MYSQL_MAX_LIFETIME" envDefault:"5m"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"smtp"`
	EmailFrom     string `env:"EMAIL_FROM"`
	EmailFromName string `env:"EMAIL_FROM_NAME" envDefault:"Campaign"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	AWSRegion    string `env:"AWS_REGION" envDefault:"us-east-1"`
	ResendAPIKey string `env:"RESEND_API_KEY"`

	DispatchMode string `env:"DISPATCH_MODE" envDefault:"stream"`

	SchedulerMaxConcurrency  int           `env:"SCHEDULER_MAX_CONCURRENCY" envDefault:"20"`
	SchedulerPollInterval    time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"5s"`
	SchedulerClaimStaleAfter time.Duration `env:"SCHEDULER_CLAIM_STALE_AFTER" envDefault:"5m"`

	LockBackend string `env:"LOCK_BACKEND" envDefault:"redis"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads .env (if present) and the process environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.SMTPUsername == "" {
		cfg.SMTPUsername = cfg.EmailFrom
	}
	return cfg, nil
}

// Sender returns the formatted From header, e.g. `"Campaign" <user@example.com>`.
func (c *Config) Sender() string {
	if c.EmailFromName == "" {
		return c.EmailFrom
	}
	addr := mail.Address{Name: c.EmailFromName, Address: c.EmailFrom}
	return addr.String()
}
