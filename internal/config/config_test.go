package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "chrome", cfg.Browser.Kind)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "realistic", cfg.Replay.Mode)
	assert.Equal(t, 2, cfg.Replay.RetryCeiling)
	assert.Equal(t, 500, cfg.Replay.BackoffBaseMs)
	assert.True(t, cfg.Output.CaptureOnError)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
browser:
  kind: chromium
  headless: false
replay:
  mode: fast
  retryCeiling: 4
output:
  screenshotDir: /tmp/shots
  recordVideo: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "chromium", cfg.Browser.Kind)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "fast", cfg.Replay.Mode)
	assert.Equal(t, 4, cfg.Replay.RetryCeiling)
	assert.Equal(t, "/tmp/shots", cfg.Output.ScreenshotDir)
	assert.True(t, cfg.Output.RecordVideo)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30, cfg.Replay.NavigationTimeoutSec)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("REPLAY_MODE", "instant")
	t.Setenv("REPLAY_HEADLESS", "false")
	t.Setenv("REPLAY_SPEED", "0.5")
	t.Setenv("REPLAY_BACKOFF_BASE_MS", "250")
	t.Setenv("REPLAY_MODAL_SETTLE_MS", "150")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "instant", cfg.Replay.Mode)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 0.5, cfg.Replay.Speed)
	assert.Equal(t, 250, cfg.Replay.BackoffBaseMs)
	assert.Equal(t, 150, cfg.Replay.ModalSettleMs)
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	t.Setenv("REPLAY_MODE", "warp")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
