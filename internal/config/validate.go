package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validTitleMatch = map[string]bool{
	"fuzzy": true, "exact": true,
}

// ValidationError aggregates configuration problems.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  - " + strings.Join(e.Errors, "\n  - ")
}

// Validate checks the settings that are not Plex connection parameters.
// Connection parameters are checked when a refresh is requested.
func (c *Config) Validate() error {
	var errs []string

	if !validTitleMatch[c.Plex.TitleMatch] {
		errs = append(errs, fmt.Sprintf("plex.title_match: must be fuzzy or exact, got %q", c.Plex.TitleMatch))
	}
	if c.Plex.MaxTitleDistance < 0 {
		errs = append(errs, "plex.max_title_distance: must not be negative")
	}
	if c.Plex.SettleDelay < 0 {
		errs = append(errs, "plex.settle_delay: must not be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.AllowedSubnet != "" {
		if _, _, err := net.ParseCIDR(c.Server.AllowedSubnet); err != nil {
			errs = append(errs, fmt.Sprintf("server.allowed_subnet: %v", err))
		}
	}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level: must be one of trace, debug, info, warn, error; got %q", c.Log.Level))
	}
	if c.Database.CleanupDays < 0 {
		errs = append(errs, "database.cleanup_days: must not be negative")
	}
	if c.Processor.Workers < 1 {
		errs = append(errs, "processor.workers: must be at least 1")
	}
	for i, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("watch.extensions[%d]: %q must start with a dot", i, ext))
		}
	}
	if len(c.Watch.PollPaths) > 0 && c.Watch.PollInterval < 10*time.Second {
		errs = append(errs, fmt.Sprintf("watch.poll_interval: must be at least 10s, got %s", c.Watch.PollInterval))
	}
	if wh := c.Notifications.Webhook; wh != nil && wh.URL == "" {
		errs = append(errs, "notifications.webhook.url: required when webhook is configured")
	}
	if d := c.Notifications.Discord; d != nil && d.WebhookURL == "" {
		errs = append(errs, "notifications.discord.webhook_url: required when discord is configured")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
