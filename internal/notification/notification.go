package notification

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event that can trigger a notification
type EventType string

const (
	EventRefreshCompleted EventType = "refresh_completed"
	EventRefreshFailed    EventType = "refresh_failed"
	EventTest             EventType = "test"
)

// Event represents a notification event
type Event struct {
	Type      EventType
	Title     string
	Message   string
	Fields    map[string]string
	Timestamp time.Time
}

// Provider is the interface for notification providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Send sends a notification
	Send(ctx context.Context, event Event) error

	// Test sends a test notification
	Test(ctx context.Context) error
}

// registration pairs a provider with the events it subscribed to. An empty
// filter receives every event.
type registration struct {
	provider Provider
	events   []EventType
}

func (r registration) wants(t EventType) bool {
	return len(r.events) == 0 || t == EventTest || slices.Contains(r.events, t)
}

// Manager handles notification dispatch
type Manager struct {
	providers map[string]registration
	mu        sync.RWMutex
	events    chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	timeout   time.Duration

	running bool
}

// NewManager creates a new notification manager. timeout bounds each
// provider call; zero means 30s.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		providers: make(map[string]registration),
		events:    make(chan Event, 100),
		stopChan:  make(chan struct{}),
		timeout:   timeout,
	}
}

// RegisterProvider registers a provider for the given events (all events when
// none are given). The dispatcher starts with the first provider.
func (m *Manager) RegisterProvider(provider Provider, events ...EventType) {
	m.mu.Lock()
	wasEmpty := len(m.providers) == 0
	m.providers[provider.Name()] = registration{provider: provider, events: events}
	shouldStart := wasEmpty && !m.running
	m.mu.Unlock()

	log.Info().Str("provider", provider.Name()).Msg("Registered notification provider")

	if shouldStart {
		m.Start()
	}
}

// ListProviders returns all registered provider names
func (m *Manager) ListProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start starts the notification dispatcher.
// Returns true if the manager was started (providers exist), false otherwise.
func (m *Manager) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return true
	}
	if len(m.providers) == 0 {
		return false
	}

	m.running = true
	m.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Notification dispatcher panicked")
			}
		}()
		m.dispatcher()
	})
	log.Debug().Msg("Notification manager started")
	return true
}

// Stop delivers events already queued and stops the dispatcher.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()

	m.stopChan = make(chan struct{})

	log.Debug().Msg("Notification manager stopped")
}

// Notify queues an event for notification. It never blocks; events are
// dropped when the queue is full or no provider is registered.
func (m *Manager) Notify(event Event) {
	if m == nil {
		return
	}
	m.mu.RLock()
	empty := len(m.providers) == 0
	m.mu.RUnlock()
	if empty {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case m.events <- event:
	default:
		log.Warn().Str("type", string(event.Type)).Msg("Notification queue full, dropping event")
	}
}

// dispatcher processes events and sends notifications
func (m *Manager) dispatcher() {
	for {
		select {
		case <-m.stopChan:
			for {
				select {
				case event := <-m.events:
					m.dispatch(event)
				default:
					return
				}
			}
		case event := <-m.events:
			m.dispatch(event)
		}
	}
}

// dispatch sends an event to all subscribed providers
func (m *Manager) dispatch(event Event) {
	m.mu.RLock()
	providers := make([]Provider, 0, len(m.providers))
	for _, reg := range m.providers {
		if reg.wants(event.Type) {
			providers = append(providers, reg.provider)
		}
	}
	m.mu.RUnlock()

	for _, provider := range providers {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := provider.Send(ctx, event)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("provider", provider.Name()).
				Str("event", string(event.Type)).
				Msg("Failed to send notification")
			continue
		}
		log.Debug().
			Str("provider", provider.Name()).
			Str("event", string(event.Type)).
			Msg("Notification sent")
	}
}

// TestProvider sends a test notification to a specific provider
func (m *Manager) TestProvider(ctx context.Context, providerName string) error {
	m.mu.RLock()
	reg, ok := m.providers[providerName]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("provider not found: %s", providerName)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	return reg.provider.Test(ctx)
}

// ParseEvents converts configured event names, rejecting unknown ones.
func ParseEvents(names []string) ([]EventType, error) {
	events := make([]EventType, 0, len(names))
	for _, name := range names {
		switch t := EventType(name); t {
		case EventRefreshCompleted, EventRefreshFailed:
			events = append(events, t)
		default:
			return nil, fmt.Errorf("unknown notification event %q", name)
		}
	}
	return events, nil
}
