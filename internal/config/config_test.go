package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktstream/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Listen)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.Equal(t, []string{"app://."}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "pcap", cfg.Capture.Source)
	assert.Equal(t, 100*time.Millisecond, cfg.Capture.PollTimeout)
	assert.Equal(t, 512, cfg.Session.QueueCapacity)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestDefaultMatchesLoad(t *testing.T) {
	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, loaded, Default())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "0.0.0.0:9000"
  allowed_origins: []
capture:
  source: file
  file: /tmp/trace.pcap
session:
  queue_capacity: 64
  poll_interval: 20ms
log:
  level: debug
  file:
    enabled: true
    filename: /tmp/pktstream.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "file", cfg.Capture.Source)
	assert.Equal(t, "/tmp/trace.pcap", cfg.Capture.File)
	assert.Equal(t, 64, cfg.Session.QueueCapacity)
	assert.Equal(t, 20*time.Millisecond, cfg.Session.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.File.Enabled)
	assert.Equal(t, "/tmp/pktstream.log", cfg.Log.File.Filename)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PKTSTREAM_SESSION_QUEUE_CAPACITY", "1024")
	t.Setenv("PKTSTREAM_CAPTURE_BPF_FILTER", "tcp port 443")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Session.QueueCapacity)
	assert.Equal(t, "tcp port 443", cfg.Capture.BPFFilter)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Capture.Source = "dpdk" }},
		{"file source without file", func(c *Config) { c.Capture.Source = "file" }},
		{"zero queue", func(c *Config) { c.Session.QueueCapacity = 0 }},
		{"negative poll interval", func(c *Config) { c.Session.PollInterval = -time.Second }},
		{"zero poll timeout", func(c *Config) { c.Capture.PollTimeout = 0 }},
		{"zero snaplen", func(c *Config) { c.Capture.SnapLen = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"relative path", func(c *Config) { c.Server.Path = "ws" }},
		{"zero write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}
