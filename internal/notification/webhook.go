package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/saltyorg/plexrefresh/internal/httpclient"
)

// WebhookConfig holds generic webhook configuration
type WebhookConfig struct {
	URL         string
	Method      string            // HTTP method (POST, PUT, etc.)
	Body        string            // Template for request body
	Headers     map[string]string // Custom headers
	ContentType string            // Content-Type header
}

// WebhookProvider sends notifications via generic HTTP webhooks
type WebhookProvider struct {
	config WebhookConfig
	tmpl   *template.Template
	client *http.Client
}

// NewWebhookProvider creates a new generic webhook notification provider.
// The body template is parsed once here.
func NewWebhookProvider(config WebhookConfig, timeout time.Duration) (*WebhookProvider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.ContentType == "" {
		config.ContentType = "application/json"
	}
	if config.Body == "" {
		config.Body = DefaultWebhookBody()
	}

	tmpl, err := parseWebhookBody(config.Body)
	if err != nil {
		return nil, err
	}

	return &WebhookProvider{
		config: config,
		tmpl:   tmpl,
		client: httpclient.NewTraceClient("webhook", timeout),
	}, nil
}

// Name returns the provider name
func (w *WebhookProvider) Name() string {
	return "webhook"
}

// webhookTemplateData holds the data available for template rendering
type webhookTemplateData struct {
	Type       string
	Title      string
	Message    string
	Timestamp  string
	Fields     map[string]string
	FieldsJSON string
}

// Send sends a notification via the webhook
func (w *WebhookProvider) Send(ctx context.Context, event Event) error {
	body, err := w.renderBody(event)
	if err != nil {
		return fmt.Errorf("failed to render body template: %w", err)
	}

	return w.sendRequest(ctx, body)
}

// Test sends a test notification
func (w *WebhookProvider) Test(ctx context.Context) error {
	return w.Send(ctx, Event{
		Type:      EventTest,
		Title:     "Test Notification",
		Message:   "This is a test notification from plexrefresh. If you see this, webhook notifications are working!",
		Timestamp: time.Now(),
		Fields: map[string]string{
			"source": "plexrefresh",
			"test":   "true",
		},
	})
}

// renderBody renders the body template with event data
func (w *WebhookProvider) renderBody(event Event) (string, error) {
	fieldsJSON := []byte("{}")
	if event.Fields != nil {
		fieldsJSON, _ = json.Marshal(event.Fields)
	}

	data := webhookTemplateData{
		Type:       string(event.Type),
		Title:      event.Title,
		Message:    event.Message,
		Timestamp:  event.Timestamp.Format(time.RFC3339),
		Fields:     event.Fields,
		FieldsJSON: string(fieldsJSON),
	}

	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// sendRequest sends the HTTP request to the webhook URL
func (w *WebhookProvider) sendRequest(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, w.config.Method, w.config.URL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", w.config.ContentType)
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	return doRequest(w.client, req)
}

// templateFuncs are available in webhook body templates. "json" renders a
// value as a JSON literal so diagnostic logs with quotes and newlines stay
// valid inside a JSON body.
var templateFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	},
}

func parseWebhookBody(body string) (*template.Template, error) {
	tmpl, err := template.New("webhook").Funcs(templateFuncs).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("invalid template syntax: %w", err)
	}
	return tmpl, nil
}

// DefaultWebhookBody returns the default webhook body template
func DefaultWebhookBody() string {
	return `{
  "event": {{json .Type}},
  "title": {{json .Title}},
  "message": {{json .Message}},
  "timestamp": {{json .Timestamp}},
  "fields": {{.FieldsJSON}}
}`
}
