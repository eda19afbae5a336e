// Package httpclient provides the outbound HTTP client shared by the Plex and
// notification calls: requests are traced at trace level with credentials
// masked in every logged URL.
package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxLoggedBody caps the traced response body; library listings can run to
// megabytes of XML.
const maxLoggedBody = 4096

// redacted replaces the value of every credential query parameter.
const redacted = "redacted"

var sensitiveQueryKeys = map[string]struct{}{
	"x-plex-token": {},
	"token":        {},
	"access_token": {},
	"apikey":       {},
	"api_key":      {},
	"api-key":      {},
	"auth":         {},
}

type traceTransport struct {
	base http.RoundTripper
	name string
}

// NewTraceTransport returns a RoundTripper that logs requests at trace level.
func NewTraceTransport(name string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &traceTransport{base: base, name: name}
}

// NewTraceClient returns an HTTP client that logs requests at trace level.
func NewTraceClient(name string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTraceTransport(name, nil),
	}
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Buffering the body is only worth it when someone will read it.
	if zerolog.GlobalLevel() > zerolog.TraceLevel {
		return t.base.RoundTrip(req)
	}

	logger := log.With().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", RedactURL(req.URL)).
		Logger()

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		logger.Trace().Dur("duration", time.Since(start)).Err(RedactError(err)).Msg("HTTP request failed")
		return nil, err
	}

	body, readErr := bufferBody(resp)
	event := logger.Trace().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("body_length", len(body)).
		Str("content_type", resp.Header.Get("Content-Type"))
	if readErr != nil {
		event.Err(readErr)
	}
	switch {
	case len(body) == 0:
	case len(body) <= maxLoggedBody && json.Valid(body):
		event.RawJSON("body", body)
	default:
		event.Str("body", snippet(body, maxLoggedBody))
	}
	event.Msg("HTTP response")

	return resp, nil
}

// bufferBody reads the whole body and replaces it with an in-memory copy so
// the caller still sees it.
func bufferBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body, err
}

func snippet(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}

// RedactString parses rawURL and masks credential query parameters.
// Unparseable input is replaced by a placeholder.
func RedactString(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable url>"
	}
	return RedactURL(u)
}

// RedactURL returns u as a string with credential query parameters masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	clean := *u
	clean.User = nil
	if clean.RawQuery == "" {
		return clean.String()
	}

	q := clean.Query()
	for key := range q {
		if _, ok := sensitiveQueryKeys[strings.ToLower(key)]; ok {
			q.Set(key, redacted)
		}
	}
	clean.RawQuery = q.Encode()
	return clean.String()
}

// RedactError masks credentials in the URL that net/http embeds in
// transport errors. Other errors are returned unchanged.
func RedactError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: RedactString(uerr.URL), Err: uerr.Err}
	}
	return err
}
