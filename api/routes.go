package api

import (
	"context"
	"net/http"
	"time"

	"github.com/etherlabsio/healthcheck"
	"github.com/gorilla/mux"

	"watchsync/handlers"
	"watchsync/store"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	traktHandler *handlers.TraktHandler,
	playbackHandler *handlers.PlaybackHandler,
	historyHandler *handlers.HistoryHandler,
	creds store.Store,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Account connection lifecycle
	api.HandleFunc("/trakt/status", traktHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/trakt/connect", traktHandler.Connect).Methods(http.MethodGet)
	api.HandleFunc("/trakt/callback", traktHandler.Callback).Methods(http.MethodGet)
	api.HandleFunc("/trakt/disconnect", traktHandler.Disconnect).Methods(http.MethodPost)

	// Playback sessions
	api.HandleFunc("/playback/sessions", playbackHandler.StartSession).Methods(http.MethodPost)
	api.HandleFunc("/playback/sessions", playbackHandler.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/playback/sessions/{sessionID}", playbackHandler.SessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/playback/sessions/{sessionID}", playbackHandler.EndSession).Methods(http.MethodDelete)
	api.HandleFunc("/playback/sessions/{sessionID}/events", playbackHandler.HandleEvent).Methods(http.MethodPost)

	// Scrobble history
	api.HandleFunc("/history", historyHandler.Recent).Methods(http.MethodGet)
	api.HandleFunc("/history", historyHandler.Clear).Methods(http.MethodDelete)

	r.Handle("/healthcheck", healthcheckHandler(creds)).Methods(http.MethodGet)
}

func healthcheckHandler(creds store.Store) http.Handler {
	return healthcheck.Handler(
		healthcheck.WithTimeout(5*time.Second),
		healthcheck.WithChecker("storage", healthcheck.CheckerFunc(func(ctx context.Context) error {
			return creds.Ping(ctx)
		})),
	)
}
