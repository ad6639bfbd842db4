package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(DevModeEnv, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, "/process", cfg.Webhook.Path)
	assert.Equal(t, 30, cfg.Notify.RatePerSecond)
	assert.Equal(t, 3, cfg.Notify.Consumers)
	assert.Equal(t, []string{"new_pair", "lock_lp"}, cfg.Enrich.ReverifyOn)
	assert.Len(t, cfg.Webhook.BurnAddresses, 2)
	assert.Zero(t, cfg.Notify.CacheStartupDelay)
	assert.False(t, cfg.DevMode)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	t.Setenv(DevModeEnv, "")
	t.Setenv("TOKENALERTS_QUEUE_MAX_RETRIES", "5")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
app:
  environment: staging
queue:
  retry_delay: 30s
chain:
  rpc_urls:
    "0x1": https://rpc.example.org
notify:
  limiter: local
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, "https://rpc.example.org", cfg.Chain.RPCURLs["0x1"])
	assert.Equal(t, "local", cfg.Notify.Limiter)
}

func TestDevModeComesFromEnvironmentOnly(t *testing.T) {
	t.Setenv(DevModeEnv, "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDevModeRejectedInProduction(t *testing.T) {
	t.Setenv(DevModeEnv, "1")
	t.Setenv("TOKENALERTS_APP_ENVIRONMENT", "production")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), DevModeEnv)
}

func TestValidateRejectsUnknownLimiter(t *testing.T) {
	t.Setenv(DevModeEnv, "")
	t.Setenv("TOKENALERTS_NOTIFY_LIMITER", "memcached")

	_, err := Load("")
	require.Error(t, err)
}
