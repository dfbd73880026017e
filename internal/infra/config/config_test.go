package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
api:
  base_url: http://agent:8603
  timeout: 5s
lifecycle:
  succeeded: [COMPLETED, SUCCEEDED]
watch:
  interval: 250ms
redis:
  addr: redis:6379
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://agent:8603", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Interval)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, domain.PhaseSucceeded, cfg.Lifecycle.Classify("SUCCEEDED"))
	assert.Equal(t, domain.PhaseFailed, cfg.Lifecycle.Classify(domain.StatusFailed))

	assert.Equal(t, 10*time.Minute, cfg.Watch.Timeout)
	assert.Equal(t, "RESINKIT_TASKS", cfg.NATS.Stream)
	assert.Equal(t, "resinkit.tasks", cfg.NATS.SubjectPrefix)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://from-file
  session_id: file-session
`)
	t.Setenv("RESINKIT_BASE_URL", "http://from-env")
	t.Setenv("RESINKIT_ACCESS_TOKEN", "secret")
	t.Setenv("RESINKIT_WATCH_INTERVAL", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env", cfg.API.BaseURL)
	assert.Equal(t, "secret", cfg.API.AccessToken)
	assert.Equal(t, "file-session", cfg.API.SessionID)
	assert.Equal(t, 3*time.Second, cfg.Watch.Interval)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("RESINKIT_BASE_URL", "http://only-env")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("RESINKIT_BASE_URL", "")

	_, err := Load(writeConfig(t, "log_level: info\n"))
	assert.ErrorContains(t, err, "base_url")

	_, err = Load(writeConfig(t, "api: {base_url: http://x}\nlog_level: loud\n"))
	assert.ErrorContains(t, err, "log_level")

	_, err = Load(writeConfig(t, "api: {base_url: http://x}\nminio: {endpoint: 'm:9000'}\n"))
	assert.ErrorContains(t, err, "bucket")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
