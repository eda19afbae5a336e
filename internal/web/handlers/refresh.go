package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/plex"
	"github.com/saltyorg/plexrefresh/internal/processor"
)

// maxRequestBody caps the JSON body of a refresh request.
const maxRequestBody = 64 << 10

type refreshRequest struct {
	Path string `json:"path"`
	Wait bool   `json:"wait"`
}

// RefreshResponse is returned when a refresh ran synchronously.
type RefreshResponse struct {
	ID              string `json:"id,omitempty"`
	Path            string `json:"path"`
	RemotePath      string `json:"remote_path,omitempty"`
	Status          string `json:"status"`
	FolderRefreshed bool   `json:"folder_refreshed"`
	ItemRefreshed   bool   `json:"item_refreshed"`
	RatingKey       string `json:"rating_key,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	Error           string `json:"error,omitempty"`
	DiagnosticLog   string `json:"diagnostic_log,omitempty"`
}

// Refresh queues a refresh for one file, or runs it and returns the outcome
// when wait is set. It accepts a JSON body on POST and query parameters on GET.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	req, err := parseRefreshRequest(w, r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	procReq := processor.Request{Path: req.Path, Source: database.SourceWebhook}

	if req.Wait {
		h.runRefresh(w, r, procReq)
		return
	}

	queued, err := h.processor.Queue(procReq)
	switch {
	case errors.Is(err, processor.ErrQueueFull), errors.Is(err, processor.ErrStopped):
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		log.Error().Err(err).Str("path", req.Path).Msg("Failed to queue refresh")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
	case !queued:
		h.writeJSON(w, http.StatusOK, map[string]any{"queued": false, "duplicate": true, "path": req.Path})
	default:
		h.writeJSON(w, http.StatusAccepted, map[string]any{"queued": true, "path": req.Path})
	}
}

func (h *Handlers) runRefresh(w http.ResponseWriter, r *http.Request, req processor.Request) {
	res := h.processor.Run(r.Context(), req)

	var cerr *plex.ConfigurationError
	if errors.As(res.Err, &cerr) {
		h.jsonError(w, cerr.Error(), http.StatusInternalServerError)
		return
	}

	resp := RefreshResponse{
		ID:              res.Record.ID,
		Path:            res.Record.FilePath,
		RemotePath:      res.Record.RemotePath,
		Status:          string(res.Record.Status),
		FolderRefreshed: res.Record.FolderRefreshed,
		ItemRefreshed:   res.Record.ItemRefreshed,
		RatingKey:       res.Record.RatingKey,
		Strategy:        res.Record.Strategy,
		Error:           res.Record.Error,
		DiagnosticLog:   res.Record.DiagnosticLog,
	}

	status := http.StatusOK
	if res.Err != nil {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, resp)
}

func parseRefreshRequest(w http.ResponseWriter, r *http.Request) (refreshRequest, error) {
	var req refreshRequest

	if r.Method == http.MethodPost && r.ContentLength != 0 {
		body := http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, errors.New("invalid JSON body")
		}
	}

	q := r.URL.Query()
	if req.Path == "" {
		req.Path = q.Get("path")
	}
	if v := q.Get("wait"); v != "" {
		wait, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.New("wait must be a boolean")
		}
		req.Wait = wait
	}

	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		return req, errors.New("path is required")
	}
	return req, nil
}
