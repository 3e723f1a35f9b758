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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, time.Duration(0), cfg.Executor.DefaultTimeout)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "opskit_history.db", cfg.History.Path)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Events.URL)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
  development: true
executor:
  default_timeout: 5s
  working_dir: /tmp
  env:
    DEPLOY_ENV: staging
history:
  enabled: true
  path: /var/lib/opskit/history.db
events:
  enabled: true
  url: nats://nats.internal:4222
  name: opskit-host-1
monitor:
  interval: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 5*time.Second, cfg.Executor.DefaultTimeout)
	assert.Equal(t, "/tmp", cfg.Executor.WorkingDir)
	assert.Equal(t, "staging", cfg.Executor.Env["DEPLOY_ENV"])
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/var/lib/opskit/history.db", cfg.History.Path)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "nats://nats.internal:4222", cfg.Events.URL)
	assert.Equal(t, "opskit-host-1", cfg.Events.Name)
	assert.Equal(t, 10*time.Second, cfg.Monitor.Interval)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
