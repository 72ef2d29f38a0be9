package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

// memStore is an in-memory credential store for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) Ping(ctx context.Context) error { return nil }

func seedRecord(t *testing.T, s *memStore, rec TokenRecord) {
	t.Helper()
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal seed record: %v", err)
	}
	if err := s.Set(tokenStoreKey, raw); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func storedRecord(t *testing.T, s *memStore) TokenRecord {
	t.Helper()
	raw, err := s.Get(tokenStoreKey)
	if err != nil {
		t.Fatalf("read stored record: %v", err)
	}
	var rec TokenRecord
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.Fatalf("decode stored record: %v", err)
		}
	}
	return rec
}

func testCredentials() Credentials {
	return Credentials{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURI:  "http://localhost:8585/api/trakt/callback",
	}
}

func newTestManager(rt roundTripFunc, s *memStore) *TokenManager {
	return NewTokenManager(testCredentials(), s, &http.Client{Transport: rt})
}

// newConnectedClient builds a Client whose token manager holds a valid,
// unexpired access token.
func newConnectedClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	s := newMemStore()
	seedRecord(t, s, TokenRecord{
		AccessToken:  "valid-token",
		RefreshToken: "refresh-token",
		ExpiresAtMS:  time.Now().Add(time.Hour).UnixMilli(),
	})
	m := newTestManager(rt, s)
	m.LoadOrRefresh(context.Background())
	if !m.IsAuthenticated() {
		t.Fatalf("expected authenticated manager")
	}
	return NewClient(m, &http.Client{Transport: rt})
}
