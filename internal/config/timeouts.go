package config

import "time"

// DefaultSettleDelay is how long to wait after a folder refresh before looking
// the file up, so Plex has a moment to register it.
const DefaultSettleDelay = time.Second

// TimeoutConfig holds timeout settings for various operations.
// These can be configured via CLI flags or the config file.
type TimeoutConfig struct {
	// HTTPClient is the timeout for each request to Plex or a notification
	// endpoint. Default: 30s
	HTTPClient time.Duration

	// RefreshOperation bounds a whole refresh invocation when it runs from the
	// queue. Default: 2m
	RefreshOperation time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPClient:       30 * time.Second,
		RefreshOperation: 2 * time.Minute,
	}
}

// global instance that can be set at startup
var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
