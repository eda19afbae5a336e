package notification

import (
	"fmt"
	"time"

	"github.com/saltyorg/plexrefresh/internal/config"
)

// NewManagerFromConfig registers every configured provider on a new manager.
// A manager with no providers is returned when nothing is configured.
func NewManagerFromConfig(cfg config.NotificationsConfig, timeout time.Duration) (*Manager, error) {
	m := NewManager(timeout)

	if wh := cfg.Webhook; wh != nil && wh.URL != "" {
		events, err := ParseEvents(wh.Events)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		provider, err := NewWebhookProvider(WebhookConfig{
			URL:         wh.URL,
			Method:      wh.Method,
			Body:        wh.Body,
			Headers:     wh.Headers,
			ContentType: wh.ContentType,
		}, timeout)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		m.RegisterProvider(provider, events...)
	}

	if dc := cfg.Discord; dc != nil && dc.WebhookURL != "" {
		events, err := ParseEvents(dc.Events)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		provider, err := NewDiscordProvider(DiscordConfig{
			WebhookURL: dc.WebhookURL,
			Username:   dc.Username,
		}, timeout)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		m.RegisterProvider(provider, events...)
	}

	return m, nil
}
