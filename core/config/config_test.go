package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:     "123:abc",
			ChannelID: -100123,
		},
		Provider: ProviderConfig{AgentURL: "http://localhost:8090/"},
		Windows: WindowsConfig{
			Intake: WindowConfig{Start: "08:00", End: "22:00"},
			Payout: WindowConfig{Start: "20:00", End: "22:00"},
		},
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, "http://localhost:8090", cfg.Provider.AgentURL)
	assert.Equal(t, "UTC", cfg.Windows.Intake.Timezone)
	assert.Equal(t, CooldownBackendPostgres, cfg.Cooldown.Backend)
	assert.Equal(t, 7, cfg.Cooldown.Days)
	assert.Equal(t, 7*24*time.Hour, cfg.CooldownPeriod())
	assert.Equal(t, 15*time.Minute, cfg.IdleTimeout())
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval())
	assert.Equal(t, 30*time.Minute, cfg.MaxBackoff())
	assert.Equal(t, 5, cfg.Session.MaxAttempts)
	assert.Equal(t, "USD", cfg.Payout.Currency)
	assert.Equal(t, "ha", cfg.DefaultLanguage)
}

func TestNormalizeRequiredFields(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Telegram.ChannelID = 0
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Provider.AgentURL = ""
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Windows.Payout.End = ""
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeRunMode(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "polling"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)

	cfg = validConfig()
	cfg.Telegram.RunMode = "carrier-pigeon"
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Telegram.RunMode = "webhook"
	assert.Error(t, Normalize(cfg), "webhook mode needs url, listen, port")

	cfg = validConfig()
	cfg.Telegram.RunMode = "webhook"
	cfg.Webhook = WebhookConfig{URL: "https://bot.example.com/hook", Listen: "0.0.0.0", Port: 8443}
	assert.NoError(t, Normalize(cfg))
}

func TestNormalizeCooldownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Cooldown.Backend = "redis"
	assert.Error(t, Normalize(cfg), "redis backend needs an address")

	cfg = validConfig()
	cfg.Cooldown.Backend = "Redis"
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, CooldownBackendRedis, cfg.Cooldown.Backend)

	cfg = validConfig()
	cfg.Cooldown.Backend = "etcd"
	assert.Error(t, Normalize(cfg))
}
