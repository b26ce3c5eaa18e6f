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

	assert.Equal(t, 0, cfg.Encoder.InputSize)
	assert.Equal(t, 0, cfg.Encoder.ContextLength)
	assert.False(t, cfg.Encoder.Debug)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "vusic", cfg.Metrics.Namespace)
	assert.Equal(t, 500*time.Millisecond, cfg.Alerts.P99Latency)
	assert.Equal(t, 0.05, cfg.Alerts.ErrorRatio)
	assert.True(t, cfg.Alerts.DeviceErrors)
}

func TestLoadFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "vusic-config-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "encoder.yaml")
	content := `encoder:
  input_size: 64
  context_length: 3
  debug: true
  seed: 17
log:
  level: debug
  format: json
metrics:
  enabled: true
  port: 9191
alerts:
  p99_latency: 2s
  device_errors: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Encoder.InputSize)
	assert.Equal(t, 3, cfg.Encoder.ContextLength)
	assert.True(t, cfg.Encoder.Debug)
	assert.Equal(t, int64(17), cfg.Encoder.Seed)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 2*time.Second, cfg.Alerts.P99Latency)
	assert.False(t, cfg.Alerts.DeviceErrors)
	assert.Equal(t, 0.05, cfg.Alerts.ErrorRatio)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("VUSIC_ENCODER_INPUT_SIZE", "16")
	t.Setenv("VUSIC_ENCODER_DEBUG", "true")
	t.Setenv("VUSIC_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Encoder.InputSize)
	assert.True(t, cfg.Encoder.Debug)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEncoderParams(t *testing.T) {
	cfg := &Config{}
	cfg.Encoder.InputSize = 8
	cfg.Encoder.ContextLength = 2
	cfg.Encoder.Seed = 3

	params := cfg.EncoderParams()
	assert.Equal(t, map[string]interface{}{
		"input_size":     8,
		"context_length": 2,
		"debug":          false,
		"seed":           int64(3),
	}, params)
}
