package trakt

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"watchsync/store"
)

const (
	defaultAPIBaseURL = "https://api.trakt.tv"
	apiVersion        = "2"

	// tokenStoreKey is the fixed key the token record is persisted under.
	tokenStoreKey = "trakt.token"
)

// TokenRecord is the persisted OAuth state. AccessToken present means
// authenticated; ExpiresAtMS, when set, is an absolute unix-millisecond
// deadline after which the token must be refreshed before use.
type TokenRecord struct {
	AccessToken      string `json:"access_token,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresAtMS      int64  `json:"expires_at_ms,omitempty"`
	PendingCSRFState string `json:"pending_csrf_state,omitempty"`
}

// Credentials configures the OAuth application.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIURL       string // optional override, defaults to the public API
	RedirectURI  string
}

// TokenManager owns the token record: it refreshes, exchanges and revokes
// tokens, generates CSRF state and builds the authorization URL. All
// persistence goes through the supplied store; the record is written after
// every mutation.
type TokenManager struct {
	creds store.Store
	httpc *http.Client
	cfg   Credentials
	now   func() time.Time

	mu     sync.Mutex // serializes access to the persisted record
	record TokenRecord
	sf     singleflight.Group
}

// NewTokenManager constructs a token manager over the given credential
// store. It does not touch the network; call LoadOrRefresh once at startup.
func NewTokenManager(cfg Credentials, creds store.Store, httpc *http.Client) *TokenManager {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIBaseURL
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{creds: creds, httpc: httpc, cfg: cfg, now: time.Now}
}

// IsAuthenticated reports whether an access token is currently held.
func (m *TokenManager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.AccessToken != ""
}

// AccessToken returns the current access token, empty when unauthenticated.
func (m *TokenManager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.AccessToken
}

// LoadOrRefresh reads the persisted record and, if the access token has
// expired, performs a refresh-token exchange. Exchange failures are
// swallowed: the manager ends up unauthenticated rather than erroring, so
// a broken token can never take the host down. This is the only place a
// refresh happens; there are no background timers.
func (m *TokenManager) LoadOrRefresh(ctx context.Context) {
	m.mu.Lock()
	m.record = m.load()
	rec := m.record
	m.mu.Unlock()

	if rec.ExpiresAtMS == 0 || m.now().UnixMilli() < rec.ExpiresAtMS {
		return
	}

	// Expired. The stale access token must not be used for API calls. The
	// exchange runs without the record mutex held; singleflight collapses
	// concurrent callers onto a single network call.
	refreshed, _, _ := m.sf.Do("refresh", func() (any, error) {
		if rec.RefreshToken == "" {
			return TokenRecord{}, nil
		}
		next, err := m.exchange(ctx, "refresh_token", rec.RefreshToken)
		if err != nil {
			log.Printf("[trakt-token] refresh failed, dropping credentials: %v", err)
			return TokenRecord{}, nil
		}
		return next, nil
	})

	m.mu.Lock()
	m.record = refreshed.(TokenRecord)
	m.persist()
	m.mu.Unlock()
}

// AuthorizeURL generates a fresh CSRF state token, persists it as pending
// and returns the authorization redirect target along with the state.
func (m *TokenManager) AuthorizeURL() (string, string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate csrf state: %w", err)
	}
	state := hex.EncodeToString(buf)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record.PendingCSRFState = state
	m.persist()

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.cfg.ClientID)
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("state", state)
	return m.authorizeBase() + "/oauth/authorize?" + q.Encode(), state, nil
}

// authorizeBase derives the user-facing site URL by stripping the API
// subdomain from the configured endpoint (api.trakt.tv -> trakt.tv).
func (m *TokenManager) authorizeBase() string {
	u, err := url.Parse(m.cfg.APIURL)
	if err != nil {
		return strings.Replace(m.cfg.APIURL, "//api.", "//", 1)
	}
	u.Host = strings.TrimPrefix(u.Host, "api.")
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// CompleteAuthorization finishes the redirect leg of the code grant. The
// returned state must equal the persisted pending state before any network
// call is made; a mismatch is the CSRF failure case. Returns whether an
// access token was obtained.
func (m *TokenManager) CompleteAuthorization(ctx context.Context, code, state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state == "" || state != m.record.PendingCSRFState {
		log.Printf("[trakt-token] authorization rejected: state mismatch")
		return false
	}
	rec, err := m.exchange(ctx, "authorization_code", code)
	if err != nil {
		log.Printf("[trakt-token] code exchange failed: %v", err)
		rec = TokenRecord{}
	}
	m.record = rec
	m.persist()
	return m.record.AccessToken != ""
}

// Disconnect clears the persisted record and revokes the access token
// remotely on a best-effort basis. It always succeeds locally; when no
// access token is held the revoke call is skipped entirely.
func (m *TokenManager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token := m.record.AccessToken; token != "" {
		if err := m.revoke(ctx, token); err != nil {
			log.Printf("[trakt-token] revoke failed (ignored): %v", err)
		}
	}
	m.record = TokenRecord{}
	m.persist()
}

// Headers builds the headers every authenticated API call carries. Without
// an access token it returns the classified unauthorized error, so a
// disconnect racing a live session surfaces as an ordinary report failure.
func (m *TokenManager) Headers(contentType string) (http.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record.AccessToken == "" {
		return nil, classifyStatus(http.StatusUnauthorized)
	}
	if contentType == "" {
		contentType = "application/json"
	}
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("Authorization", "Bearer "+m.record.AccessToken)
	h.Set("trakt-api-version", apiVersion)
	h.Set("trakt-api-key", m.cfg.ClientID)
	return h, nil
}

// tokenResponse is the token endpoint's payload for both grant types.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	CreatedAt    int64  `json:"created_at"`
}

// exchange posts a code or refresh_token grant to the token endpoint and
// maps the response into a fresh record.
func (m *TokenManager) exchange(ctx context.Context, grantType, value string) (TokenRecord, error) {
	payload := map[string]string{
		"grant_type":    grantType,
		"client_id":     m.cfg.ClientID,
		"client_secret": m.cfg.ClientSecret,
		"redirect_uri":  m.cfg.RedirectURI,
	}
	switch grantType {
	case "refresh_token":
		payload["refresh_token"] = value
	default:
		payload["code"] = value
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("marshal grant: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return TokenRecord{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenRecord{}, fmt.Errorf("token endpoint: %s", resp.Status)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return TokenRecord{}, fmt.Errorf("decode token response: %w", err)
	}
	createdAt := tok.CreatedAt
	if createdAt == 0 {
		createdAt = m.now().Unix()
	}
	return TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAtMS:  (createdAt + tok.ExpiresIn) * 1000,
	}, nil
}

// revoke invalidates the access token remotely. Form-encoded per the
// service's revoke endpoint.
func (m *TokenManager) revoke(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL+"/oauth/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("revoke endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke endpoint: %s", resp.Status)
	}
	return nil
}

func (m *TokenManager) load() TokenRecord {
	raw, err := m.creds.Get(tokenStoreKey)
	if err != nil {
		log.Printf("[trakt-token] read token record: %v", err)
		return TokenRecord{}
	}
	if len(raw) == 0 {
		return TokenRecord{}
	}
	var rec TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Printf("[trakt-token] corrupt token record, discarding: %v", err)
		return TokenRecord{}
	}
	return rec
}

func (m *TokenManager) persist() {
	raw, err := json.Marshal(m.record)
	if err != nil {
		log.Printf("[trakt-token] marshal token record: %v", err)
		return
	}
	if err := m.creds.Set(tokenStoreKey, raw); err != nil {
		log.Printf("[trakt-token] persist token record: %v", err)
	}
}
