// Package plex resolves a processed media file to a single Plex library item
// and refreshes that item's metadata along with its folder.
//
// A refresh runs as one sequential chain per file: folder refresh, library
// listing, then (only when the file is not listed directly) show, season and
// episode listings. Nothing is shared between invocations.
package plex

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/pathmap"
)

// Request is everything one refresh needs from the caller.
type Request struct {
	FilePath         string
	Protocol         string
	Host             string
	Token            string
	LibraryKey       string
	LocalPathPrefix  string
	RemotePathPrefix string
}

// Validate checks the connection parameters.
func (r Request) Validate() error {
	var missing, invalid []string
	if r.Protocol == "" {
		missing = append(missing, "protocol")
	} else if r.Protocol != "http" && r.Protocol != "https" {
		invalid = append(invalid, fmt.Sprintf("protocol %q (want http or https)", r.Protocol))
	}
	if r.Host == "" {
		missing = append(missing, "host")
	}
	if r.Token == "" {
		missing = append(missing, "token")
	}
	if r.LibraryKey == "" {
		missing = append(missing, "library key")
	}
	if r.FilePath == "" {
		missing = append(missing, "file path")
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return &ConfigurationError{Missing: missing, Invalid: invalid}
	}
	return nil
}

// Outcome is the result of one refresh, including the human-readable trail of
// every step taken.
type Outcome struct {
	File            string // remote file path
	Folder          string // remote folder path
	FolderRefreshed bool
	ItemRefreshed   bool
	RatingKey       string
	Strategy        string
	Log             []string
}

func (o *Outcome) logf(format string, args ...any) {
	o.Log = append(o.Log, fmt.Sprintf(format, args...))
}

// DiagnosticLog joins the trail into one newline-separated string.
func (o *Outcome) DiagnosticLog() string {
	if o == nil || len(o.Log) == 0 {
		return ""
	}
	return strings.Join(o.Log, "\n") + "\n"
}

// Options tune matching and pacing. The zero value uses fuzzy title matching
// and no settle delay.
type Options struct {
	TitlePolicy TitlePolicy
	SettleDelay time.Duration
	HTTPClient  *http.Client
}

// Refresher runs refresh invocations. It is safe for concurrent use.
type Refresher struct {
	opts Options
}

// NewRefresher creates a refresher with the given options.
func NewRefresher(opts Options) *Refresher {
	return &Refresher{opts: opts}
}

// invocation carries the state of a single refresh.
type invocation struct {
	client *Client
	out    *Outcome
}

// Children implements ChildrenFetcher.
func (inv *invocation) Children(ctx context.Context, ratingKey string) (*Document, error) {
	return inv.fetchDocument(ctx, inv.client.ChildrenURL(ratingKey))
}

func (inv *invocation) fetchDocument(ctx context.Context, rawURL string) (*Document, error) {
	resp := inv.client.Get(ctx, rawURL)
	if err := resp.transportError(http.MethodGet); err != nil {
		return nil, err
	}
	doc, err := ParseDocument(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: resp.URL, StatusCode: resp.StatusCode, Err: err}
	}
	return doc, nil
}

// Refresh refreshes the folder containing req.FilePath and then the library
// item for the file itself. The folder refresh is always attempted and never
// fails the call on its own. When no item could be refreshed the returned
// error is a *RefreshError carrying the diagnostic log; a *ConfigurationError
// is returned before any request when connection settings are missing.
func (r *Refresher) Refresh(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resolved := pathmap.Translate(req.FilePath, req.LocalPathPrefix, req.RemotePathPrefix)
	inv := &invocation{
		client: NewClient(req.Protocol, req.Host, req.Token, r.opts.HTTPClient),
		out:    &Outcome{File: resolved.File, Folder: resolved.Folder},
	}
	out := inv.out

	logger := log.With().
		Str("file", resolved.File).
		Str("library", req.LibraryKey).
		Logger()

	out.logf("Attempting to refresh Plex item for file %s in library %s", resolved.File, req.LibraryKey)

	out.logf("Folder refresh for %s", resolved.Folder)
	folderResp := inv.client.Get(ctx, inv.client.FolderRefreshURL(req.LibraryKey, resolved.Folder))
	if err := folderResp.transportError(http.MethodGet); err != nil {
		out.logf("Folder refresh failed: %v", err)
		logger.Warn().Err(err).Str("folder", resolved.Folder).Msg("Folder refresh failed")
	} else {
		out.FolderRefreshed = true
		logger.Debug().Str("folder", resolved.Folder).Msg("Folder refresh requested")
	}

	r.settle(ctx)

	library, err := inv.fetchDocument(ctx, inv.client.LibraryURL(req.LibraryKey))
	if err != nil {
		out.logf("Could not fetch library contents: %v", err)
		return out, &RefreshError{Outcome: out, Cause: err}
	}

	target, err := NewLocator(inv, r.opts.TitlePolicy, out).Locate(ctx, library, resolved.File)
	if err != nil {
		out.logf("Could not locate item for %s; only the folder refresh was requested", resolved.File)
		logger.Debug().Err(err).Msg("Item lookup failed")
		return out, &RefreshError{Outcome: out, Cause: err}
	}
	out.RatingKey = target.RatingKey
	out.Strategy = target.Strategy

	out.logf("Refreshing metadata for %s (ratingKey %s)", target.Title, target.RatingKey)
	itemResp := inv.client.Put(ctx, inv.client.ItemRefreshURL(target.RatingKey))
	if err := itemResp.transportError(http.MethodPut); err != nil {
		out.logf("Item refresh failed: %v", err)
		return out, &RefreshError{Outcome: out, Cause: err}
	}
	out.ItemRefreshed = true
	out.logf("Refreshed metadata for %s", target.Title)

	logger.Info().
		Str("rating_key", target.RatingKey).
		Str("strategy", target.Strategy).
		Bool("folder_refreshed", out.FolderRefreshed).
		Msg("Plex item refreshed")

	return out, nil
}

// settle waits for the configured delay or until ctx is done.
func (r *Refresher) settle(ctx context.Context) {
	if r.opts.SettleDelay <= 0 {
		return
	}
	timer := time.NewTimer(r.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
