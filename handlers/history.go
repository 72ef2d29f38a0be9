package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"watchsync/models"
	"watchsync/services/history"
)

type historyService interface {
	Recent(ctx context.Context, limit int) ([]models.ScrobbleRecord, error)
	Clear(ctx context.Context) error
}

var _ historyService = (*history.Service)(nil)

// HistoryHandler exposes recorded scrobble outcomes.
type HistoryHandler struct {
	Service historyService
}

func NewHistoryHandler(service historyService) *HistoryHandler {
	return &HistoryHandler{Service: service}
}

// Recent lists the latest outcomes, newest first.
func (h *HistoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.Service.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// Clear wipes the recorded outcomes.
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Clear(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
