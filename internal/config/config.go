// Package config loads the plexrefresh configuration from a TOML file, the
// environment and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "./plexrefresh.toml"

// Config is the root configuration structure.
type Config struct {
	Plex          PlexConfig          `toml:"plex"`
	Server        ServerConfig        `toml:"server"`
	Database      DatabaseConfig      `toml:"database"`
	Log           LogConfig           `toml:"log"`
	Watch         WatchConfig         `toml:"watch"`
	Processor     ProcessorConfig     `toml:"processor"`
	Notifications NotificationsConfig `toml:"notifications"`
	Timeouts      TimeoutsConfig      `toml:"timeouts"`
}

// PlexConfig holds the connection and matching settings for the Plex server.
type PlexConfig struct {
	Protocol         string `toml:"protocol"`
	Host             string `toml:"host"`
	Token            string `toml:"token"`
	LibraryKey       string `toml:"library_key"`
	LocalPathPrefix  string `toml:"local_path_prefix"`
	RemotePathPrefix string `toml:"remote_path_prefix"`

	// TitleMatch selects how a show folder is matched to a library entry:
	// "fuzzy" picks the nearest title by edit distance, "exact" requires equality
	// after normalization.
	TitleMatch       string        `toml:"title_match"`
	MaxTitleDistance int           `toml:"max_title_distance"`
	SettleDelay      time.Duration `toml:"settle_delay"`
}

type ServerConfig struct {
	Bind          string `toml:"bind"`
	Port          int    `toml:"port"`
	APIKey        string `toml:"api_key"`        // plain text or bcrypt hash
	AllowedSubnet string `toml:"allowed_subnet"` // CIDR; empty allows every source
}

type DatabaseConfig struct {
	Path        string `toml:"path"`
	CleanupDays int    `toml:"cleanup_days"` // 0 keeps history forever
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type WatchConfig struct {
	Paths      []string      `toml:"paths"`
	Extensions []string      `toml:"extensions"`
	Debounce   time.Duration `toml:"debounce"`

	// PollPaths are walked every PollInterval instead of watched with inotify.
	PollPaths    []string      `toml:"poll_paths"`
	PollInterval time.Duration `toml:"poll_interval"`
}

type ProcessorConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

type NotificationsConfig struct {
	Webhook *WebhookConfig `toml:"webhook"`
	Discord *DiscordConfig `toml:"discord"`
}

type WebhookConfig struct {
	URL         string            `toml:"url"`
	Method      string            `toml:"method"`
	Body        string            `toml:"body"`
	Headers     map[string]string `toml:"headers"`
	ContentType string            `toml:"content_type"`
	Events      []string          `toml:"events"`
}

type DiscordConfig struct {
	WebhookURL string   `toml:"webhook_url"`
	Username   string   `toml:"username"`
	Events     []string `toml:"events"`
}

type TimeoutsConfig struct {
	HTTPClient       time.Duration `toml:"http_client"`
	RefreshOperation time.Duration `toml:"refresh_operation"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := newConfig()
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file, then applies environment
// overrides and defaults. A missing file is not an error when optional is true.
func Load(path string, optional bool) (*Config, error) {
	cfg := newConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.ApplyEnv(NewLoader(EnvSettings{}))
	cfg.applyDefaults()
	return cfg, nil
}

// newConfig presets the settings whose zero value is meaningful, so an
// explicit zero in the file or environment is kept.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Plex.SettleDelay = DefaultSettleDelay
	return cfg
}

// ApplyEnv overrides file values with settings from the given loader.
func (c *Config) ApplyEnv(l *Loader) {
	c.Plex.Protocol = l.String("PLEX_PROTOCOL", c.Plex.Protocol)
	c.Plex.Host = l.String("PLEX_HOST", c.Plex.Host)
	c.Plex.Token = l.String("PLEX_TOKEN", c.Plex.Token)
	c.Plex.LibraryKey = l.String("PLEX_LIBRARY_KEY", c.Plex.LibraryKey)
	c.Plex.LocalPathPrefix = l.String("PLEX_LOCAL_PATH_PREFIX", c.Plex.LocalPathPrefix)
	c.Plex.RemotePathPrefix = l.String("PLEX_REMOTE_PATH_PREFIX", c.Plex.RemotePathPrefix)
	c.Plex.SettleDelay = l.Duration("PLEX_SETTLE_DELAY", c.Plex.SettleDelay)
	c.Server.Port = l.Int("PORT", c.Server.Port)
	c.Server.APIKey = l.String("API_KEY", c.Server.APIKey)
	c.Database.Path = l.String("DB_PATH", c.Database.Path)
	c.Log.Level = l.String("LOG_LEVEL", c.Log.Level)
	c.Log.Compress = l.Bool("LOG_COMPRESS", c.Log.Compress)
}

func (c *Config) applyDefaults() {
	if c.Plex.Protocol == "" {
		c.Plex.Protocol = "http"
	}
	if c.Plex.Host == "" {
		c.Plex.Host = "localhost:32400"
	}
	if c.Plex.TitleMatch == "" {
		c.Plex.TitleMatch = "fuzzy"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7979
	}
	if c.Database.Path == "" {
		c.Database.Path = "./plexrefresh.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = []string{".mkv", ".mp4", ".avi", ".m4v", ".ts", ".webm"}
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 10 * time.Second
	}
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = time.Minute
	}
	if c.Processor.Workers == 0 {
		c.Processor.Workers = 2
	}
	if c.Processor.QueueSize == 0 {
		c.Processor.QueueSize = 100
	}
	if c.Timeouts.HTTPClient == 0 {
		c.Timeouts.HTTPClient = DefaultTimeoutConfig().HTTPClient
	}
	if c.Timeouts.RefreshOperation == 0 {
		c.Timeouts.RefreshOperation = DefaultTimeoutConfig().RefreshOperation
	}
}

// TimeoutConfig converts the file settings into the runtime timeout config.
func (c *Config) TimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPClient:       c.Timeouts.HTTPClient,
		RefreshOperation: c.Timeouts.RefreshOperation,
	}
}
