package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: file\n  run_mode: polling\n"), 0o600))
	t.Setenv("BOT_TOKEN", "env")
	t.Setenv("ADMIN_IDS", "3,1,3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Telegram.Token)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, []int64{3, 1}, cfg.Telegram.AdminIDs)
	assert.True(t, cfg.IsAdmin(1))
	assert.False(t, cfg.IsAdmin(2))
}

func TestNormalize(t *testing.T) {
	base := func() *Config {
		return &Config{Telegram: TelegramConfig{Token: "t"}}
	}

	cfg := base()
	cfg.Telegram.RunMode = RunModeWebhook
	assert.EqualError(t, Normalize(cfg), "invalid webhook.url: failed required")

	cfg = base()
	cfg.Telegram.RunMode = RunModeWebhook
	cfg.Webhook = WebhookConfig{URL: "https://example.org/hook", Listen: ":8443", Port: 8443}
	assert.NoError(t, Normalize(cfg))

	cfg = base()
	cfg.Telegram.RunMode = "carrier-pigeon"
	assert.Error(t, Normalize(cfg))

	cfg = base()
	cfg.Telegram.AdminIDs = []int64{0}
	assert.ErrorContains(t, Normalize(cfg), "admin_ids")

	cfg = base()
	cfg.RateLimit.Burst = -1
	assert.Error(t, Normalize(cfg))

	cfg = base()
	cfg.RateLimit.ExcludeUpdates = []string{" Callback "}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, []string{UpdateCallback}, cfg.RateLimit.ExcludeUpdates)

	cfg = base()
	cfg.Logging.Level = "LOUD"
	assert.ErrorContains(t, Normalize(cfg), "invalid logging.level: failed oneof")

	cfg = base()
	cfg.Logging.Level = " DEBUG "
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg = base()
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, DefaultSendRetries, cfg.Sender.MaxRetries)

	cfg = base()
	cfg.Sender.MaxRetries = -1
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, -1, cfg.Sender.MaxRetries)

	cfg = base()
	cfg.Sender.MaxRetries = 50
	assert.EqualError(t, Normalize(cfg), "invalid sender.max_retries: failed lte")

	assert.EqualError(t, Normalize(&Config{}), "invalid telegram.token: failed required")
	var nilCfg *Config
	assert.False(t, nilCfg.IsAdmin(1))
}
