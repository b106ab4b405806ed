package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gg-glitch-88/holvi/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holvi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "holvi.db", cfg.Store.Path)
	assert.False(t, cfg.Store.ExposeReads)
	assert.False(t, cfg.Harvest.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Harvest.Interval.Std())
	assert.Equal(t, "flag", cfg.Harvest.Key)
	assert.Equal(t, 64, cfg.Harvest.MaxLen)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
store:
  path: /tmp/test.db
  expose_reads: true
worklet:
  beacon_base: https://collector.example/hit
harvest:
  enabled: true
  interval: 250ms
  key: secret
  max_len: 16
log:
  level: debug
  dev: true
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.Store.Path)
	assert.True(t, cfg.Store.ExposeReads)
	assert.Equal(t, "https://collector.example/hit", cfg.Worklet.BeaconBase)
	assert.True(t, cfg.Harvest.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Harvest.Interval.Std())
	assert.Equal(t, "secret", cfg.Harvest.Key)
	assert.Equal(t, 16, cfg.Harvest.MaxLen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Dev)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOLVI_LISTEN_ADDR", ":7070")
	t.Setenv("HOLVI_DB_PATH", "/var/lib/holvi/holvi.db")
	t.Setenv("HOLVI_EXPOSE_READS", "true")
	t.Setenv("HOLVI_HARVEST_ENABLED", "true")
	t.Setenv("HOLVI_HARVEST_INTERVAL", "750ms")
	t.Setenv("HOLVI_HARVEST_KEY", "secret")
	t.Setenv("HOLVI_HARVEST_MAX_LEN", "12")
	t.Setenv("HOLVI_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, "/var/lib/holvi/holvi.db", cfg.Store.Path)
	assert.True(t, cfg.Store.ExposeReads)
	assert.True(t, cfg.Harvest.Enabled)
	assert.Equal(t, 750*time.Millisecond, cfg.Harvest.Interval.Std())
	assert.Equal(t, "secret", cfg.Harvest.Key)
	assert.Equal(t, 12, cfg.Harvest.MaxLen)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvOverrideParseErrors(t *testing.T) {
	cases := []struct{ name, key, value string }{
		{"expose reads", "HOLVI_EXPOSE_READS", "yep"},
		{"harvest enabled", "HOLVI_HARVEST_ENABLED", "kind-of"},
		{"harvest interval", "HOLVI_HARVEST_INTERVAL", "soon"},
		{"harvest max len", "HOLVI_HARVEST_MAX_LEN", "lots"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := config.Load("")
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestBadDuration(t *testing.T) {
	path := writeConfig(t, "harvest:\n  interval: soon\n")
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse duration")
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty listen addr", "server:\n  listen_addr: \"\"\n"},
		{"relative beacon base", "worklet:\n  beacon_base: not-a-url\n"},
		{"harvest without interval", "harvest:\n  enabled: true\n  interval: 0s\n"},
		{"harvest empty key", "harvest:\n  enabled: true\n  key: \"\"\n"},
		{"bad log level", "log:\n  level: loud\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}
