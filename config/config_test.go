package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.HTTPAddress)
	assert.Equal(t, 64, cfg.Connection.SendBuffer)
	assert.Equal(t, 60*time.Second, cfg.Connection.PongWait)
	assert.Equal(t, time.Duration(0), cfg.Room.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Room.ReapInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  http_address: ":4000"
  allowed_origins: ["https://example.test"]
room:
  idle_timeout: 30m
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("MAHJONG_CONNECTION_BURST", "7")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Server.HTTPAddress)
	assert.Equal(t, []string{"https://example.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.Room.IdleTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Connection.Burst)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MAHJONG_SERVER_RPC_ADDRESS=127.0.0.1:3001\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAHJONG_SERVER_RPC_ADDRESS") })

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3001", cfg.Server.RPCAddress)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [:"), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 40, cfg.Connection.Burst)
	assert.InDelta(t, 20.0, cfg.Connection.MessagesPerSecond, 0.0001)
}
