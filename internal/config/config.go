// Load envs from .env
// Load YAML config
// Override with env vars
// Provide default values
// Validate config

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	TelegramToken string `yaml:"telegram_token" env:"TELEGRAM_BOT_TOKEN"`
	DatabaseURL   string `yaml:"database_url" env:"DATABASE_URL"`
	//hh.ru API
	HHAPIURL    string `yaml:"hh_api_url" env:"HH_API_URL"`
	HHUserAgent string `yaml:"hh_user_agent" env:"HH_USER_AGENT"`
	//Webhook server
	Port          string `yaml:"port" env:"PORT"`
	WebhookURL    string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	WebhookSecret string `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	//Activation window
	RenewalPeriod time.Duration `yaml:"renewal_period" env:"RENEWAL_PERIOD"`
	WarnBefore    time.Duration `yaml:"warn_before" env:"WARN_BEFORE"`
	//Error tracking
	SentryDSN         string `yaml:"sentry_dsn" env:"SENTRY_DSN"`
	SentryEnvironment string `yaml:"sentry_environment" env:"SENTRY_ENVIRONMENT"`
}

// Load reads .env, then configs/config.yaml, then the environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath)
}

func LoadFrom(path string) (*Config, error) {
	_ = godotenv.Load()

	//Load yaml config
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		log.Printf("Warning: %s not found, using environment only", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	//Override with env vars
	overrideString(&cfg.TelegramToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.HHAPIURL, "HH_API_URL")
	overrideString(&cfg.HHUserAgent, "HH_USER_AGENT")
	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.WebhookURL, "WEBHOOK_URL")
	overrideString(&cfg.WebhookSecret, "WEBHOOK_SECRET")
	overrideString(&cfg.SentryDSN, "SENTRY_DSN")
	overrideString(&cfg.SentryEnvironment, "SENTRY_ENVIRONMENT")
	if err := overrideDuration(&cfg.RenewalPeriod, "RENEWAL_PERIOD"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.WarnBefore, "WARN_BEFORE"); err != nil {
		return nil, err
	}

	//Set default values if not set
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "sqlite://bumper.db"
	}
	if cfg.HHAPIURL == "" {
		cfg.HHAPIURL = "https://api.hh.ru"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.RenewalPeriod == 0 {
		cfg.RenewalPeriod = 7 * 24 * time.Hour
	}
	if cfg.WarnBefore == 0 {
		cfg.WarnBefore = 24 * time.Hour
	}
	if cfg.SentryEnvironment == "" {
		cfg.SentryEnvironment = "development"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks fields every command needs. Bot-specific fields are
// checked by RequireBot and RequireWebhook.
func (c *Config) Validate() error {
	if !hasAnyPrefix(c.DatabaseURL, "postgres://", "postgresql://", "sqlite://") {
		return fmt.Errorf("DATABASE_URL must start with postgres://, postgresql:// or sqlite://, got %q", c.DatabaseURL)
	}
	if c.RenewalPeriod <= 0 {
		return errors.New("RENEWAL_PERIOD must be positive")
	}
	if c.WarnBefore < 0 || c.WarnBefore >= c.RenewalPeriod {
		return fmt.Errorf("WARN_BEFORE must be between 0 and RENEWAL_PERIOD (%s)", c.RenewalPeriod)
	}
	return nil
}

func (c *Config) RequireBot() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func (c *Config) RequireWebhook() error {
	if err := c.RequireBot(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return errors.New("WEBHOOK_URL must be an https:// url")
	}
	if c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required")
	}
	return nil
}

// WebhookEndpoint is the full url Telegram pushes updates to.
func (c *Config) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + "/webhook/telegram/" + c.WebhookSecret
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
