// Package config loads and validates the bot configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// ChannelID is the operator channel for announcements.
	ChannelID int64  `yaml:"channel_id" envconfig:"TELEGRAM_CHANNEL_ID"`
	RunMode   string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Dir     string `yaml:"dir"`
	BotFile string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// RedisConfig holds optional Redis settings for the cooldown ledger.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// ProviderConfig points at the login agent daemon.
type ProviderConfig struct {
	AgentURL       string `yaml:"agent_url" envconfig:"PROVIDER_AGENT_URL"`
	AuthToken      string `yaml:"auth_token" envconfig:"PROVIDER_AUTH_TOKEN"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"PROVIDER_TIMEOUT_SECONDS"`
}

// WindowConfig is one daily admission interval.
type WindowConfig struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// WindowsConfig carries the two independent admission windows.
type WindowsConfig struct {
	Intake WindowConfig `yaml:"intake"`
	Payout WindowConfig `yaml:"payout"`
}

// CooldownConfig controls the identifier refractory period.
type CooldownConfig struct {
	Days int `yaml:"days" envconfig:"COOLDOWN_DAYS"`
	// Backend selects "postgres" (default) or "redis".
	Backend string `yaml:"backend" envconfig:"COOLDOWN_BACKEND"`
}

// SessionConfig bounds the session controller lifecycle.
type SessionConfig struct {
	IdleTimeoutMinutes   int `yaml:"idle_timeout_minutes" envconfig:"SESSION_IDLE_TIMEOUT_MINUTES"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" envconfig:"SESSION_SWEEP_INTERVAL_MINUTES"`
	MaxBackoffMinutes    int `yaml:"max_backoff_minutes" envconfig:"SESSION_MAX_BACKOFF_MINUTES"`
	// MaxAttempts caps consecutive invalid codes/secrets per session.
	MaxAttempts int `yaml:"max_attempts" envconfig:"SESSION_MAX_ATTEMPTS"`
}

// PayoutConfig controls balance accrual.
type PayoutConfig struct {
	RatePerAccount float64 `yaml:"rate_per_account" envconfig:"PAYOUT_RATE_PER_ACCOUNT"`
	Currency       string  `yaml:"currency" envconfig:"PAYOUT_CURRENCY"`
}

// RateLimitConfig holds settings for inbound rate limiting.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"

	// CooldownBackendPostgres stores cooldown entries in Postgres.
	CooldownBackendPostgres = "postgres"
	// CooldownBackendRedis stores cooldown entries as Redis TTL keys.
	CooldownBackendRedis = "redis"
)

// Config aggregates the full bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Windows   WindowsConfig   `yaml:"windows"`
	Cooldown  CooldownConfig  `yaml:"cooldown"`
	Session   SessionConfig   `yaml:"session"`
	Payout    PayoutConfig    `yaml:"payout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// DefaultLanguage is assigned to new users ("en" or "ha").
	DefaultLanguage string `yaml:"default_language" envconfig:"DEFAULT_LANGUAGE"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.ChannelID == 0 {
		return fmt.Errorf("telegram.channel_id is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.Provider.AgentURL) == "" {
		return fmt.Errorf("provider.agent_url is required")
	}
	cfg.Provider.AgentURL = strings.TrimRight(cfg.Provider.AgentURL, "/")

	if err := normalizeWindow("windows.intake", &cfg.Windows.Intake); err != nil {
		return err
	}
	if err := normalizeWindow("windows.payout", &cfg.Windows.Payout); err != nil {
		return err
	}

	if cfg.Cooldown.Days <= 0 {
		cfg.Cooldown.Days = 7
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Cooldown.Backend))
	if backend == "" {
		backend = CooldownBackendPostgres
	}
	switch backend {
	case CooldownBackendPostgres:
	case CooldownBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when cooldown.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid cooldown.backend %q; allowed: postgres, redis", cfg.Cooldown.Backend)
	}
	cfg.Cooldown.Backend = backend

	if cfg.Session.IdleTimeoutMinutes <= 0 {
		cfg.Session.IdleTimeoutMinutes = 15
	}
	if cfg.Session.SweepIntervalMinutes <= 0 {
		cfg.Session.SweepIntervalMinutes = 5
	}
	if cfg.Session.MaxBackoffMinutes <= 0 {
		cfg.Session.MaxBackoffMinutes = 30
	}
	if cfg.Session.MaxAttempts <= 0 {
		cfg.Session.MaxAttempts = 5
	}

	if cfg.Payout.RatePerAccount < 0 {
		return fmt.Errorf("payout.rate_per_account must be >= 0")
	}
	if cfg.Payout.Currency == "" {
		cfg.Payout.Currency = "USD"
	}

	lang := strings.ToLower(strings.TrimSpace(cfg.DefaultLanguage))
	if lang == "" {
		lang = "ha"
	}
	cfg.DefaultLanguage = lang

	return nil
}

func normalizeWindow(name string, w *WindowConfig) error {
	if strings.TrimSpace(w.Start) == "" || strings.TrimSpace(w.End) == "" {
		return fmt.Errorf("%s.start and %s.end are required (HH:MM)", name, name)
	}
	if strings.TrimSpace(w.Timezone) == "" {
		w.Timezone = "UTC"
	}
	return nil
}

// CooldownPeriod returns the refractory period as a duration.
func (c *Config) CooldownPeriod() time.Duration {
	return time.Duration(c.Cooldown.Days) * 24 * time.Hour
}

// IdleTimeout returns the session idle bound as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns the sweep cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalMinutes) * time.Minute
}

// MaxBackoff returns the rate-limit wait cap as a duration.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Session.MaxBackoffMinutes) * time.Minute
}
