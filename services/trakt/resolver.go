package trakt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// exactMatchScore is the sentinel score the search endpoint assigns to an
// exact title match. Disambiguation only ever accepts hits at this score.
const exactMatchScore = 1000

// ErrMissingTitle is returned when a resolution is attempted for a request
// whose guess carries no title at all; no network call is made.
var ErrMissingTitle = errors.New("trakt: scrobble target has no title")

// ErrAmbiguousEpisode flags an inconsistent remote catalog: more than one
// episode in the season matched the requested number. This is a data error,
// distinct from not-found.
var ErrAmbiguousEpisode = errors.New("trakt: multiple episodes match the requested number")

// Resolver turns a best-guess scrobble request into one backed by the
// service's canonical identifiers. It reports optimistically first and only
// falls back to search + season lookup on a not-found, so the common case
// where the service recognizes the literal title costs zero extra calls.
type Resolver struct {
	client *Client
}

// NewResolver creates a resolver over the given API client.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve issues the initial start report for req, enriching it with
// canonical identifiers along the way. On success the request has been
// updated in place and the service's acknowledgement is returned. A
// not-found error means the target could not be unambiguously identified;
// any other error is terminal for this resolution.
func (r *Resolver) Resolve(ctx context.Context, req *ScrobbleRequest) (*ScrobbleResponse, error) {
	title := req.Title()
	if title == "" {
		return nil, ErrMissingTitle
	}

	// Optimistic path: the service may already recognize the guessed title.
	resp, err := r.client.Scrobble(ctx, ActionStart, req)
	if err == nil {
		adoptResponse(req, resp)
		return resp, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	kind := "show"
	if req.IsMovie() {
		kind = "movie"
	}
	log.Printf("[trakt-resolver] %s %q not recognized, falling back to search", kind, title)

	hits, err := r.client.Search(ctx, kind, title)
	if err != nil {
		return nil, err
	}
	if err := adoptSearchHit(req, hits, kind); err != nil {
		return nil, err
	}

	if !req.IsMovie() {
		if err := r.resolveEpisode(ctx, req); err != nil {
			return nil, err
		}
	}

	// One retry with the enriched request. A second not-found is terminal.
	resp, err = r.client.Scrobble(ctx, ActionStart, req)
	if err != nil {
		return nil, err
	}
	adoptResponse(req, resp)
	return resp, nil
}

// adoptSearchHit applies the disambiguation policy: only hits at the exact
// match score qualify, and anything other than exactly one qualifying hit
// fails the resolution. The engine never guesses among equals.
func adoptSearchHit(req *ScrobbleRequest, hits []SearchResult, kind string) error {
	var exact []SearchResult
	for _, hit := range hits {
		if hit.Type == kind && hit.Score >= exactMatchScore {
			exact = append(exact, hit)
		}
	}
	if len(exact) != 1 {
		return &Error{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("search for %q returned %d exact matches", req.Title(), len(exact)),
		}
	}
	switch {
	case req.IsMovie() && exact[0].Movie != nil:
		req.Movie = exact[0].Movie
	case !req.IsMovie() && exact[0].Show != nil:
		req.Show = exact[0].Show
	default:
		return &Error{Status: http.StatusNotFound, Message: "search hit carried no " + kind + " entity"}
	}
	return nil
}

// resolveEpisode replaces the guessed episode with the canonical one from
// the show's season listing: exact season-scoped number first, absolute
// number as fallback. Multiple matches on either criterion indicate an
// inconsistent catalog and fail the resolution as a data error.
func (r *Resolver) resolveEpisode(ctx context.Context, req *ScrobbleRequest) error {
	if req.Episode == nil {
		return &Error{Status: http.StatusNotFound, Message: "show target has no episode guess"}
	}
	episodes, err := r.client.SeasonEpisodes(ctx, req.Show.IDs.Trakt, req.Episode.Season, true)
	if err != nil {
		return err
	}

	want := req.Episode.Number
	matches := matchEpisodes(episodes, func(e Episode) bool { return e.Number == want })
	if len(matches) == 0 {
		abs := req.Episode.NumberAbs
		if abs == 0 {
			abs = want
		}
		matches = matchEpisodes(episodes, func(e Episode) bool { return e.NumberAbs == abs })
	}

	switch len(matches) {
	case 1:
		req.Episode = &matches[0]
		return nil
	case 0:
		return &Error{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("season %d has no episode %d", req.Episode.Season, want),
		}
	default:
		return fmt.Errorf("%w: season %d episode %d has %d candidates",
			ErrAmbiguousEpisode, req.Episode.Season, want, len(matches))
	}
}

func matchEpisodes(episodes []Episode, match func(Episode) bool) []Episode {
	var out []Episode
	for _, e := range episodes {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// adoptResponse copies the canonical entities from an acknowledged report
// back into the request so later reports reuse them.
func adoptResponse(req *ScrobbleRequest, resp *ScrobbleResponse) {
	if resp.Movie != nil && req.IsMovie() {
		req.Movie = resp.Movie
	}
	if resp.Show != nil && !req.IsMovie() {
		req.Show = resp.Show
	}
	if resp.Episode != nil && !req.IsMovie() {
		req.Episode = resp.Episode
	}
}
