package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTokenFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("xoxc-test"), 0o600))
	return path
}

func TestValidateRefusesNonLoopbackWithoutOverride(t *testing.T) {
	cfg := Default()
	cfg.TokenFile = writeTokenFile(t)
	cfg.BindIP = "0.0.0.0"
	cfg.DownloadsDir = t.TempDir()
	cfg.StatusFile = filepath.Join(t.TempDir(), "status.json")

	err := cfg.Validate()
	assert.Error(t, err)

	cfg.OverrideLocalIP = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresTokenFile(t *testing.T) {
	cfg := Default()
	cfg.DownloadsDir = t.TempDir()
	cfg.StatusFile = filepath.Join(t.TempDir(), "status.json")

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateCreatesDownloadsDir(t *testing.T) {
	cfg := Default()
	cfg.TokenFile = writeTokenFile(t)
	cfg.DownloadsDir = filepath.Join(t.TempDir(), "nested", "downloads")
	cfg.StatusFile = filepath.Join(t.TempDir(), "status.json")

	require.NoError(t, cfg.Validate())
	info, err := os.Stat(cfg.DownloadsDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestApplyEnvOverridesField(t *testing.T) {
	t.Setenv("SLACKIRC_PORT", "9100")
	cfg, err := Load("/does/not/exist.toml")
	require.NoError(t, err)
	ApplyEnv(cfg)
	assert.Equal(t, 9100, cfg.Port)
}

func TestApplyEnvOverridesFlagOverlay(t *testing.T) {
	t.Setenv("SLACKIRC_PORT", "9100")
	cfg, err := Load("/does/not/exist.toml")
	require.NoError(t, err)

	cfg.Port = 9300 // simulates a command-line flag overlay applied before ApplyEnv

	ApplyEnv(cfg)
	assert.Equal(t, 9100, cfg.Port, "environment variables must win over command-line flags")
}

func TestLoadReadsTomlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 9200
bind_ip = "127.0.0.2"
autojoin = false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, "127.0.0.2", cfg.BindIP)
	assert.False(t, cfg.Autojoin)
}
