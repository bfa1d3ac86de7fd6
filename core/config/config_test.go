package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Chat.SendWorkers)
	assert.Equal(t, 1000, cfg.Chat.MarkAsReadMax)
	assert.Equal(t, int64(50), cfg.Storage.MaxSizeMB)
	assert.Equal(t, 5*time.Minute, cfg.Storage.UploadURLExpires)
	assert.Equal(t, 15*time.Minute, cfg.Storage.DownloadURLExpires)
	assert.Equal(t, 2*time.Hour, cfg.Campaign.RecoveryWindow)
	assert.Equal(t, time.Minute, cfg.Campaign.Tick)
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}, cfg.Queue.RetryDelays)
	assert.Same(t, cfg, Global)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("CHAT_SEND_MESSAGE_WORKERS", "7")
	t.Setenv("WEBHOOK_ALLOWED_ORIGINS", "10.0.0.1, gateway.internal ,")
	t.Setenv("ALLOW_ALL_WEBHOOK_ORIGINS", "yes")
	t.Setenv("S3_UPLOAD_URL_EXPIRES", "9999")
	t.Setenv("GATEWAY_BASE_URL", "https://gw.example.com/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Chat.SendWorkers)
	assert.Equal(t, []string{"10.0.0.1", "gateway.internal"}, cfg.Webhook.AllowedOrigins)
	assert.True(t, cfg.Webhook.AllowAll)
	// presigned PUT never exceeds five minutes
	assert.Equal(t, 5*time.Minute, cfg.Storage.UploadURLExpires)
	assert.Equal(t, "https://gw.example.com", cfg.Gateway.BaseURL)
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	cfg := &Config{App: AppConfig{Timezone: "Not/AZone"}}
	assert.Equal(t, time.UTC, cfg.Location())

	var nilCfg *Config
	assert.Equal(t, time.UTC, nilCfg.Location())
}
