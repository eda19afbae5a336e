package plex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/saltyorg/plexrefresh/internal/config"
	"github.com/saltyorg/plexrefresh/internal/httpclient"
)

// tokenParam is the query parameter Plex reads the auth token from.
const tokenParam = "X-Plex-Token"

// Response is the result of a single request. StatusCode is 0 when the
// request never produced a response, in which case Err says why.
type Response struct {
	StatusCode int
	Body       string
	URL        string // requested URL with the token redacted
	Err        error
}

// OK reports whether the request completed with HTTP 200.
func (r Response) OK() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

func (r Response) transportError(method string) error {
	if r.OK() {
		return nil
	}
	return &TransportError{
		Method:     method,
		URL:        r.URL,
		StatusCode: r.StatusCode,
		Err:        r.Err,
	}
}

// Client talks to one Plex server. Each call issues exactly one request;
// nothing is retried.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for protocol://host. A nil httpClient gets a
// tracing client with the global HTTP timeout.
func NewClient(protocol, host, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewTraceClient("plex", config.GetTimeouts().HTTPClient)
	}
	return &Client{
		baseURL: strings.TrimRight(fmt.Sprintf("%s://%s", protocol, host), "/"),
		token:   token,
		client:  httpClient,
	}
}

// Get issues a GET request. It never returns an error; failures are carried
// in the Response.
func (c *Client) Get(ctx context.Context, rawURL string) Response {
	return c.do(ctx, http.MethodGet, rawURL)
}

// Put issues a PUT request with an empty body.
func (c *Client) Put(ctx context.Context, rawURL string) Response {
	return c.do(ctx, http.MethodPut, rawURL)
}

func (c *Client) do(ctx context.Context, method, rawURL string) Response {
	res := Response{URL: httpclient.RedactString(rawURL)}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		res.Err = fmt.Errorf("failed to create request: %w", err)
		return res
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("request failed: %w", httpclient.RedactError(err))
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	res.StatusCode = resp.StatusCode
	res.Body = string(body)
	if err != nil {
		res.Err = fmt.Errorf("failed to read response: %w", err)
	}
	return res
}

// LibraryURL lists every item in a library section.
func (c *Client) LibraryURL(libraryKey string) string {
	return c.withToken(fmt.Sprintf("%s/library/sections/%s/all", c.baseURL, url.PathEscape(libraryKey)), nil)
}

// ChildrenURL lists the children (seasons or episodes) of an item.
func (c *Client) ChildrenURL(ratingKey string) string {
	return c.withToken(fmt.Sprintf("%s/library/metadata/%s/children", c.baseURL, url.PathEscape(ratingKey)), nil)
}

// FolderRefreshURL asks Plex to rescan one folder of a library section.
func (c *Client) FolderRefreshURL(libraryKey, folder string) string {
	params := url.Values{}
	params.Set("path", folder)
	return c.withToken(fmt.Sprintf("%s/library/sections/%s/refresh", c.baseURL, url.PathEscape(libraryKey)), params)
}

// ItemRefreshURL asks Plex to re-read metadata for one item.
func (c *Client) ItemRefreshURL(ratingKey string) string {
	return c.withToken(fmt.Sprintf("%s/library/metadata/%s/refresh", c.baseURL, url.PathEscape(ratingKey)), nil)
}

func (c *Client) withToken(base string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set(tokenParam, c.token)
	return base + "?" + params.Encode()
}
