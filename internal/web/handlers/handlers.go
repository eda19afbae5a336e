// Package handlers implements the webhook server's HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/processor"
)

// Processor queues or runs refreshes. *processor.Processor implements it.
type Processor interface {
	Queue(req processor.Request) (bool, error)
	Run(ctx context.Context, req processor.Request) processor.Result
	Stats() processor.Stats
}

// History reads recorded refreshes. *database.DB implements it.
type History interface {
	GetRefresh(id string) (*database.Refresh, error)
	ListRecentRefreshes(limit int) ([]*database.Refresh, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	processor Processor
	history   History
	version   string
	statuses  map[string]func() any
}

// New creates a new handlers instance. history may be nil.
func New(proc Processor, history History, version string) *Handlers {
	return &Handlers{
		processor: proc,
		history:   history,
		version:   version,
		statuses:  make(map[string]func() any),
	}
}

// AddStatus adds a named section to the health response. It must be called
// before the server starts handling requests.
func (h *Handlers) AddStatus(name string, fn func() any) {
	h.statuses[name] = fn
}

// Health reports liveness and queue statistics.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   h.version,
		"processor": h.processor.Stats(),
	}
	for name, fn := range h.statuses {
		resp[name] = fn()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
