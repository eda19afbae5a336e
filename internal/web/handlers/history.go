package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/database"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ListHistory returns the most recent refreshes, newest first.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.jsonError(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	refreshes, err := h.history.ListRecentRefreshes(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list refresh history")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if refreshes == nil {
		refreshes = []*database.Refresh{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"refreshes": refreshes,
		"count":     len(refreshes),
	})
}

// GetHistory returns one recorded refresh by ID.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.jsonError(w, "History is disabled", http.StatusNotFound)
		return
	}

	id := chi.URLParam(r, "id")
	refresh, err := h.history.GetRefresh(id)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to get refresh")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if refresh == nil {
		h.jsonError(w, "Refresh not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, refresh)
}
