package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSyncConfig(t *testing.T) {
	assert.NoError(t, validateSyncConfig(DefaultSyncConfig()))

	cfg := DefaultSyncConfig()
	cfg.PollInterval = 200 * time.Millisecond
	assert.Error(t, validateSyncConfig(cfg))

	cfg = DefaultSyncConfig()
	cfg.BoardStatuses = nil
	assert.Error(t, validateSyncConfig(cfg))
}

func TestDecodeSyncConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yml")
	body := "sync:\n  pollInterval: 3s\n  heartbeatInterval: 10s\n  retryHint: 1s\n  boardStatuses: [sent, preparing]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := decodeSyncConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, []string{"sent", "preparing"}, cfg.BoardStatuses)
}

func TestStaticHolder(t *testing.T) {
	holder := NewStaticSyncConfigHolder(DefaultSyncConfig())
	assert.Equal(t, 7*time.Second, holder.Get().PollInterval)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("RATE_LIMIT_ORDER_RATE", "-1")
	t.Setenv("SCHEDULER_SWEEP_INTERVAL", "45s")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 0.5, cfg.RateLimit.OrderRate)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.SweepInterval)
}
