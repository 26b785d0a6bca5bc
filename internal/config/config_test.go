package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chanctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
valkey:
  addresses: ["cache-1:6379", "cache-2:6379"]
  db: 2
bus:
  workers: 8
  reconnect_min: 250ms
  reconnect_max: 10s
log:
  level: DEBUG
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"cache-1:6379", "cache-2:6379"}, cfg.Valkey.Addresses)
	require.Equal(t, 2, cfg.Valkey.DB)
	require.Equal(t, 8, cfg.Bus.Workers)
	require.Equal(t, 100, cfg.Bus.BufferSize)
	require.Equal(t, 250*time.Millisecond, cfg.Bus.ReconnectMin)
	require.Equal(t, 10*time.Second, cfg.Bus.ReconnectMax)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("CHANNELS_LOG_LEVEL", "warn")
	t.Setenv("CHANNELS_BUS_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, 2, cfg.Bus.Workers)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"bad level":        "log:\n  level: loud\n",
		"bad address":      "valkey:\n  addresses: [\"no-port\"]\n",
		"inverted backoff": "bus:\n  reconnect_min: 5s\n  reconnect_max: 1s\n",
		"zero workers":     "bus:\n  workers: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "valkey: [unterminated"))
	require.Error(t, err)
}
