package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/plexrefresh/internal/auth"
	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/plex"
	"github.com/saltyorg/plexrefresh/internal/processor"
)

type fakeProcessor struct {
	mu       sync.Mutex
	queued   []processor.Request
	ran      []processor.Request
	queueErr error
	dup      bool
	result   processor.Result
}

func (f *fakeProcessor) Queue(req processor.Request) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueErr != nil {
		return false, f.queueErr
	}
	if f.dup {
		return false, nil
	}
	f.queued = append(f.queued, req)
	return true, nil
}

func (f *fakeProcessor) Run(_ context.Context, req processor.Request) processor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, req)
	res := f.result
	if res.Record == nil {
		res.Record = &database.Refresh{}
	}
	res.Record.FilePath = req.Path
	return res
}

func (f *fakeProcessor) Stats() processor.Stats {
	return processor.Stats{Workers: 2, Queued: len(f.queued)}
}

type fakeHistory struct {
	refreshes []*database.Refresh
	lastLimit int
}

func (f *fakeHistory) GetRefresh(id string) (*database.Refresh, error) {
	for _, r := range f.refreshes {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeHistory) ListRecentRefreshes(limit int) ([]*database.Refresh, error) {
	f.lastLimit = limit
	return f.refreshes, nil
}

func newTestServer(proc *fakeProcessor, history *fakeHistory, apiKey string) *Server {
	opts := Options{Version: "test", Verifier: auth.NewVerifier(apiKey)}
	if history == nil {
		return NewServer(opts, proc, nil)
	}
	return NewServer(opts, proc, history)
}

func serve(s *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeProcessor{}, nil, "secret")

	rec := serve(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "processor")
	assert.NotContains(t, body, "watcher")
}

func TestHealthStatus(t *testing.T) {
	s := newTestServer(&fakeProcessor{}, nil, "secret")
	s.AddStatus("poller", func() any {
		return map[string]int{"seen_files": 3}
	})

	rec := serve(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	poller, ok := body["poller"].(map[string]any)
	require.True(t, ok, "poller section missing: %v", body)
	assert.Equal(t, float64(3), poller["seen_files"])
}

func TestRefreshQueue(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		proc       *fakeProcessor
		wantStatus int
		wantQueued bool
	}{
		{
			name:       "POST body",
			method:     http.MethodPost,
			target:     "/api/refresh",
			body:       `{"path": "/data/Movies/Foo (2020)/Foo.mkv"}`,
			proc:       &fakeProcessor{},
			wantStatus: http.StatusAccepted,
			wantQueued: true,
		},
		{
			name:       "GET query",
			method:     http.MethodGet,
			target:     "/api/refresh?path=/data/Movies/Foo.mkv",
			proc:       &fakeProcessor{},
			wantStatus: http.StatusAccepted,
			wantQueued: true,
		},
		{
			name:       "Duplicate",
			method:     http.MethodGet,
			target:     "/api/refresh?path=/data/Movies/Foo.mkv",
			proc:       &fakeProcessor{dup: true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Queue full",
			method:     http.MethodGet,
			target:     "/api/refresh?path=/data/Movies/Foo.mkv",
			proc:       &fakeProcessor{queueErr: processor.ErrQueueFull},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "Stopped",
			method:     http.MethodGet,
			target:     "/api/refresh?path=/data/Movies/Foo.mkv",
			proc:       &fakeProcessor{queueErr: processor.ErrStopped},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "Missing path",
			method:     http.MethodPost,
			target:     "/api/refresh",
			body:       `{"path": "  "}`,
			proc:       &fakeProcessor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Invalid JSON",
			method:     http.MethodPost,
			target:     "/api/refresh",
			body:       `{"path":`,
			proc:       &fakeProcessor{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Invalid wait",
			method:     http.MethodGet,
			target:     "/api/refresh?path=/a.mkv&wait=maybe",
			proc:       &fakeProcessor{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.proc, nil, "secret")
			rec := serve(s, tt.method, tt.target, tt.body, map[string]string{"X-API-Key": "secret"})
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantQueued {
				require.Len(t, tt.proc.queued, 1)
				assert.Equal(t, database.SourceWebhook, tt.proc.queued[0].Source)
				assert.Equal(t, true, decode(t, rec)["queued"])
			} else {
				assert.Empty(t, tt.proc.queued)
			}
		})
	}
}

func TestRefreshRequiresAPIKey(t *testing.T) {
	proc := &fakeProcessor{}
	s := newTestServer(proc, nil, "secret")

	rec := serve(s, http.MethodGet, "/api/refresh?path=/a.mkv", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(s, http.MethodGet, "/api/refresh?path=/a.mkv&api_key=secret", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, proc.queued, 1)
}

func TestRefreshWait(t *testing.T) {
	t.Run("Completed", func(t *testing.T) {
		proc := &fakeProcessor{result: processor.Result{Record: &database.Refresh{
			ID:              "abc",
			Status:          database.RefreshStatusCompleted,
			FolderRefreshed: true,
			ItemRefreshed:   true,
			RatingKey:       "123",
			Strategy:        plex.StrategyDirect,
		}}}
		s := newTestServer(proc, nil, "")

		rec := serve(s, http.MethodPost, "/api/refresh", `{"path": "/m/Foo.mkv", "wait": true}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, proc.queued)
		require.Len(t, proc.ran, 1)

		body := decode(t, rec)
		assert.Equal(t, "abc", body["id"])
		assert.Equal(t, "completed", body["status"])
		assert.Equal(t, "123", body["rating_key"])
		assert.Equal(t, "/m/Foo.mkv", body["path"])
		assert.Equal(t, true, body["item_refreshed"])
	})

	t.Run("Failed", func(t *testing.T) {
		proc := &fakeProcessor{result: processor.Result{
			Record: &database.Refresh{Status: database.RefreshStatusFailed, Error: "not found"},
			Err:    errors.New("not found"),
		}}
		s := newTestServer(proc, nil, "")

		rec := serve(s, http.MethodGet, "/api/refresh?path=/m/Foo.mkv&wait=true", "", nil)
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "not found", decode(t, rec)["error"])
	})

	t.Run("Configuration error", func(t *testing.T) {
		proc := &fakeProcessor{result: processor.Result{
			Err: &plex.ConfigurationError{Missing: []string{"token"}},
		}}
		s := newTestServer(proc, nil, "")

		rec := serve(s, http.MethodGet, "/api/refresh?path=/m/Foo.mkv&wait=1", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHistory(t *testing.T) {
	now := time.Now().UTC()
	history := &fakeHistory{refreshes: []*database.Refresh{
		{ID: "b", FilePath: "/m/b.mkv", Status: database.RefreshStatusFailed, CreatedAt: now},
		{ID: "a", FilePath: "/m/a.mkv", Status: database.RefreshStatusCompleted, CreatedAt: now.Add(-time.Minute)},
	}}
	s := newTestServer(&fakeProcessor{}, history, "")

	rec := serve(s, http.MethodGet, "/api/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])
	assert.Equal(t, 50, history.lastLimit)

	rec = serve(s, http.MethodGet, "/api/history?limit=10000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, history.lastLimit)

	rec = serve(s, http.MethodGet, "/api/history?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, http.MethodGet, "/api/history/a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/m/a.mkv", decode(t, rec)["file_path"])

	rec = serve(s, http.MethodGet, "/api/history/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(&fakeProcessor{}, nil, "")

	rec := serve(s, http.MethodGet, "/api/history", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
