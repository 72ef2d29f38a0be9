package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"watchsync/models"
	"watchsync/services/playback"
	"watchsync/services/trakt"
)

type playbackService interface {
	StartSession(guess models.MediaGuess) (string, error)
	HandleEvent(ctx context.Context, sessionID string, state trakt.PlaybackState, progress float64) error
	SessionStatus(sessionID string) (models.SessionStatus, error)
	EndSession(ctx context.Context, sessionID string) error
	Sessions() []models.SessionStatus
}

var _ playbackService = (*playback.Service)(nil)

// PlaybackHandler exposes playback sessions over HTTP.
type PlaybackHandler struct {
	Service playbackService
}

func NewPlaybackHandler(service playbackService) *PlaybackHandler {
	return &PlaybackHandler{Service: service}
}

// StartSession registers a new media load.
func (h *PlaybackHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var guess models.MediaGuess
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&guess); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if guess.Type != "movie" && guess.Type != "episode" {
		http.Error(w, "type must be movie or episode", http.StatusBadRequest)
		return
	}

	id, err := h.Service.StartSession(guess)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, playback.ErrNotConnected):
			status = http.StatusConflict
		case errors.Is(err, playback.ErrGuessRequired):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
}

type playbackEventPayload struct {
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
}

// HandleEvent forwards one player transition to the session's engine.
func (h *PlaybackHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(mux.Vars(r)["sessionID"])
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	var payload playbackEventPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := trakt.PlaybackState(payload.State)
	switch state {
	case trakt.PlaybackPlaying, trakt.PlaybackPaused, trakt.PlaybackEnded:
	default:
		http.Error(w, "state must be playing, paused or ended", http.StatusBadRequest)
		return
	}

	if err := h.Service.HandleEvent(r.Context(), sessionID, state, payload.Progress); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, playback.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	status, err := h.Service.SessionStatus(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// SessionStatus reports one session's engine state.
func (h *PlaybackHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(mux.Vars(r)["sessionID"])
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	status, err := h.Service.SessionStatus(sessionID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, playback.ErrSessionNotFound) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// ListSessions reports every live session.
func (h *PlaybackHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Sessions())
}

// EndSession tears a session down, sending one final stop report when
// playback was still tracked.
func (h *PlaybackHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(mux.Vars(r)["sessionID"])
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.EndSession(r.Context(), sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, playback.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
