package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plexrefresh.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PLEX_PROTOCOL", "PLEX_HOST", "PLEX_TOKEN", "PLEX_LIBRARY_KEY",
		"PLEX_LOCAL_PATH_PREFIX", "PLEX_REMOTE_PATH_PREFIX", "PLEX_SETTLE_DELAY",
		"PORT", "API_KEY", "DB_PATH", "LOG_LEVEL", "LOG_COMPRESS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[plex]
protocol = "https"
host = "plex.example.com"
token = "abc"
library_key = "29"
local_path_prefix = "/media/local/"
remote_path_prefix = "/data/"
title_match = "exact"
settle_delay = "3s"

[server]
port = 8080

[watch]
paths = ["/media/local/tv"]
debounce = "30s"
`)

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "https", cfg.Plex.Protocol)
	assert.Equal(t, "plex.example.com", cfg.Plex.Host)
	assert.Equal(t, "29", cfg.Plex.LibraryKey)
	assert.Equal(t, "/media/local/", cfg.Plex.LocalPathPrefix)
	assert.Equal(t, "exact", cfg.Plex.TitleMatch)
	assert.Equal(t, 3*time.Second, cfg.Plex.SettleDelay)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, []string{"/media/local/tv"}, cfg.Watch.Paths)

	// defaults fill the rest
	assert.Equal(t, 2, cfg.Processor.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Watch.Extensions)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg, err := Load(missing, true)
	require.NoError(t, err)
	assert.Equal(t, "fuzzy", cfg.Plex.TitleMatch)
	assert.Equal(t, DefaultSettleDelay, cfg.Plex.SettleDelay)

	_, err = Load(missing, false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadZeroSettleDelay(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[plex]\nsettle_delay = \"0s\"\n")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Plex.SettleDelay, "explicit zero disables the delay")

	t.Setenv("PLEX_SETTLE_DELAY", "0s")
	cfg, err = Load(filepath.Join(t.TempDir(), "absent.toml"), true)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Plex.SettleDelay)

	assert.Equal(t, DefaultSettleDelay, Default().Plex.SettleDelay)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeConfig(t, "[plex\nhost=")
	_, err := Load(path, false)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	cfg.Plex.Token = "from-file"
	cfg.Server.Port = 1000

	cfg.ApplyEnv(NewLoader(MapSettings{
		"PLEX_TOKEN":        "from-env",
		"PORT":              "not-a-number",
		"PLEX_SETTLE_DELAY": "250ms",
		"LOG_COMPRESS":      "true",
	}))

	assert.Equal(t, "from-env", cfg.Plex.Token)
	assert.Equal(t, 1000, cfg.Server.Port, "invalid ints keep the previous value")
	assert.Equal(t, 250*time.Millisecond, cfg.Plex.SettleDelay)
	assert.True(t, cfg.Log.Compress)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "Defaults are valid", mutate: func(*Config) {}},
		{name: "Unknown title match", mutate: func(c *Config) { c.Plex.TitleMatch = "closest" }, wantErr: true},
		{name: "Port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "Bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "Extension without dot", mutate: func(c *Config) { c.Watch.Extensions = []string{"mkv"} }, wantErr: true},
		{name: "Webhook without URL", mutate: func(c *Config) { c.Notifications.Webhook = &WebhookConfig{} }, wantErr: true},
		{name: "Negative distance", mutate: func(c *Config) { c.Plex.MaxTitleDistance = -1 }, wantErr: true},
		{name: "Valid subnet", mutate: func(c *Config) { c.Server.AllowedSubnet = "172.16.0.0/12" }},
		{name: "Bad subnet", mutate: func(c *Config) { c.Server.AllowedSubnet = "172.16.0.0" }, wantErr: true},
		{name: "Poll paths", mutate: func(c *Config) { c.Watch.PollPaths = []string{"/mnt/remote"} }},
		{name: "Poll interval too short", mutate: func(c *Config) {
			c.Watch.PollPaths = []string{"/mnt/remote"}
			c.Watch.PollInterval = time.Second
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
		})
	}
}
