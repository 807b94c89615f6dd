package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultConfigName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  addr: 0.0.0.0:4000
  data_dir: state
  save_interval: 250ms
  min_update_interval: 50ms
  watch: true
client:
  server_url: ws://example.test/ws
  cooldown: 1s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:4000", cfg.Server.Addr)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.Server.DataDir, "relative to the config file")
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Server.SaveInterval))
	assert.Equal(t, 50*time.Millisecond, time.Duration(cfg.Server.MinUpdateInterval))
	assert.True(t, cfg.Server.Watch)
	assert.Equal(t, "ws://example.test/ws", cfg.Client.ServerURL)
	assert.Equal(t, time.Second, time.Duration(cfg.Client.Cooldown))
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultServerURL, cfg.Client.ServerURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "Unknown Field", content: "server:\n  adress: x\n"},
		{name: "Bad Duration", content: "server:\n  save_interval: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, t.TempDir(), tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server:\n  addr: from-file:1\n")
	t.Setenv(EnvAddr, "from-env:2")
	t.Setenv(EnvDataDir, "/srv/shelf")
	t.Setenv(EnvServerURL, "ws://env/ws")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env:2", cfg.Server.Addr)
	assert.Equal(t, "/srv/shelf", cfg.Server.DataDir)
	assert.Equal(t, "ws://env/ws", cfg.Client.ServerURL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.SendBuffer = 7
	cfg.Server.Watch = true
	cfg.Client.Heartbeat = Duration(5 * time.Second)

	o := apply(cfg.ServerOptions())
	assert.Equal(t, DefaultAddr, o.addr)
	assert.Equal(t, 7, o.sendBuffer)
	assert.True(t, o.watch)
	assert.Equal(t, DefaultFlushGrace, o.flushGrace, "zero keeps the default")

	o = apply(cfg.ClientOptions())
	assert.Equal(t, 5*time.Second, o.heartbeat)
	assert.NotNil(t, o.logger)
}
