package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientURLs(t *testing.T) {
	c := NewClient("http", "plex.local:32400", "secret", http.DefaultClient)

	tests := []struct {
		name     string
		got      string
		wantPath string
		wantArgs map[string]string
	}{
		{
			name:     "Library listing",
			got:      c.LibraryURL("2"),
			wantPath: "/library/sections/2/all",
			wantArgs: map[string]string{"X-Plex-Token": "secret"},
		},
		{
			name:     "Children listing",
			got:      c.ChildrenURL("50"),
			wantPath: "/library/metadata/50/children",
			wantArgs: map[string]string{"X-Plex-Token": "secret"},
		},
		{
			name:     "Folder refresh",
			got:      c.FolderRefreshURL("2", "/data/TV/Bar & Baz/Season 2"),
			wantPath: "/library/sections/2/refresh",
			wantArgs: map[string]string{"X-Plex-Token": "secret", "path": "/data/TV/Bar & Baz/Season 2"},
		},
		{
			name:     "Item refresh",
			got:      c.ItemRefreshURL("99"),
			wantPath: "/library/metadata/99/refresh",
			wantArgs: map[string]string{"X-Plex-Token": "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.got)
			require.NoError(t, err)
			assert.Equal(t, "http", u.Scheme)
			assert.Equal(t, "plex.local:32400", u.Host)
			assert.Equal(t, tt.wantPath, u.Path)
			q := u.Query()
			assert.Len(t, q, len(tt.wantArgs))
			for k, v := range tt.wantArgs {
				assert.Equal(t, v, q.Get(k), "query %s", k)
			}
		})
	}
}

func TestClientGetRedactsToken(t *testing.T) {
	var gotToken, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("X-Plex-Token")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	c := NewClient("http", host, "secret", srv.Client())

	resp := c.Get(context.Background(), c.LibraryURL("1"))
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "application/xml", gotAccept)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "nope", resp.Body)
	assert.False(t, resp.OK())
	assert.NotContains(t, resp.URL, "secret")
	assert.Contains(t, resp.URL, "redacted")

	err := resp.transportError(http.MethodGet)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
	assert.Contains(t, err.Error(), "404")
}

func TestClientPut(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer srv.Close()

	c := NewClient("http", strings.TrimPrefix(srv.URL, "http://"), "secret", srv.Client())
	resp := c.Put(context.Background(), c.ItemRefreshURL("99"))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.True(t, resp.OK())
	assert.NoError(t, resp.transportError(http.MethodPut))
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c := NewClient("http", host, "secret", &http.Client{})
	resp := c.Get(context.Background(), c.LibraryURL("1"))

	assert.Equal(t, 0, resp.StatusCode)
	require.Error(t, resp.Err)
	assert.NotContains(t, resp.Err.Error(), "secret")

	err := resp.transportError(http.MethodGet)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 0, terr.StatusCode)
	assert.NotContains(t, err.Error(), "secret")
}
