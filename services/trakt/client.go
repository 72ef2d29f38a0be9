package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"
)

// Client performs authenticated operations against the tracking service.
// Every call attaches the token manager's headers and returns either the
// parsed payload or a classified *Error. Operations never retry internally;
// retry policy belongs to the scrobble engine, which alone knows whether a
// retry could double-report.
type Client struct {
	httpc  *http.Client
	tokens *TokenManager
	base   string
}

// NewClient creates an API client bound to a token manager.
func NewClient(tokens *TokenManager, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpc: httpc, tokens: tokens, base: tokens.cfg.APIURL}
}

// searchParams are the query-string options for the search endpoint.
type searchParams struct {
	Query    string `url:"query"`
	Extended string `url:"extended,omitempty"`
}

// seasonsParams are the query-string options for the season endpoints.
type seasonsParams struct {
	Extended string `url:"extended,omitempty"`
}

// Search performs a text search restricted to one result kind
// ("movie", "show", "episode").
func (c *Client) Search(ctx context.Context, kind, text string) ([]SearchResult, error) {
	q, err := query.Values(searchParams{Query: text})
	if err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}
	var hits []SearchResult
	if err := c.do(ctx, http.MethodGet, "/search/"+kind+"?"+q.Encode(), nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// Seasons lists a show's seasons, optionally with their episodes inlined.
func (c *Client) Seasons(ctx context.Context, showID int, withEpisodes bool) ([]Season, error) {
	params := seasonsParams{}
	if withEpisodes {
		params.Extended = "episodes"
	}
	path := fmt.Sprintf("/shows/%d/seasons", showID)
	if q, err := query.Values(params); err == nil && len(q) > 0 {
		path += "?" + q.Encode()
	}
	var seasons []Season
	if err := c.do(ctx, http.MethodGet, path, nil, &seasons); err != nil {
		return nil, err
	}
	return seasons, nil
}

// SeasonEpisodes lists the episodes of one season. With extended set the
// service includes full episode details, absolute numbers included.
func (c *Client) SeasonEpisodes(ctx context.Context, showID, season int, extended bool) ([]Episode, error) {
	params := seasonsParams{}
	if extended {
		params.Extended = "full"
	}
	path := fmt.Sprintf("/shows/%d/seasons/%d", showID, season)
	if q, err := query.Values(params); err == nil && len(q) > 0 {
		path += "?" + q.Encode()
	}
	var episodes []Episode
	if err := c.do(ctx, http.MethodGet, path, nil, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}

// Scrobble reports one playback action for the request's target.
func (c *Client) Scrobble(ctx context.Context, action Action, req *ScrobbleRequest) (*ScrobbleResponse, error) {
	var resp ScrobbleResponse
	if err := c.do(ctx, http.MethodPost, "/scrobble/"+string(action), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do issues one authenticated request and decodes the response into dest.
// Non-success statuses come back as a classified *Error; transport failures
// classify under the network pseudo-status.
func (c *Client) do(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	headers, err := c.tokens.Headers("application/json")
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = headers

	resp, err := c.httpc.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	if terr := classifyStatus(resp.StatusCode); terr != nil {
		return terr
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
