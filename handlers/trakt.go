package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"watchsync/services/trakt"
)

type tokenService interface {
	IsAuthenticated() bool
	AuthorizeURL() (string, string, error)
	CompleteAuthorization(ctx context.Context, code, state string) bool
	Disconnect(ctx context.Context)
}

var _ tokenService = (*trakt.TokenManager)(nil)

// TraktHandler exposes the account connection lifecycle.
type TraktHandler struct {
	Tokens tokenService
}

func NewTraktHandler(tokens tokenService) *TraktHandler {
	return &TraktHandler{Tokens: tokens}
}

// Status reports whether a tracking account is connected.
func (h *TraktHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"connected": h.Tokens.IsAuthenticated()})
}

// Connect starts the OAuth flow by redirecting to the authorization page.
func (h *TraktHandler) Connect(w http.ResponseWriter, r *http.Request) {
	target, _, err := h.Tokens.AuthorizeURL()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback finishes the OAuth flow. The state parameter must match the
// one issued by Connect or the exchange is refused.
func (h *TraktHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	if !h.Tokens.CompleteAuthorization(r.Context(), code, state) {
		http.Error(w, "authorization failed", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"connected": true})
}

// Disconnect drops the stored credentials. Safe to call repeatedly.
func (h *TraktHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.Tokens.Disconnect(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
