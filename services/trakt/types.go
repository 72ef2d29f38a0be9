package trakt

// IDs holds the tracking service's identifiers for a media item. Any subset
// may be present; a zero value means the ID is unknown.
type IDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
	TVDB  int    `json:"tvdb,omitempty"`
}

// Movie represents a Trakt movie.
type Movie struct {
	Title string `json:"title,omitempty"`
	Year  int    `json:"year,omitempty"`
	IDs   IDs    `json:"ids,omitempty"`
}

// Show represents a Trakt TV show.
type Show struct {
	Title string `json:"title,omitempty"`
	Year  int    `json:"year,omitempty"`
	IDs   IDs    `json:"ids,omitempty"`
}

// Episode represents a Trakt episode. Number is scoped to the season;
// NumberAbs is the episode's ordinal across the whole show.
type Episode struct {
	Season    int    `json:"season"`
	Number    int    `json:"number"`
	NumberAbs int    `json:"number_abs,omitempty"`
	Title     string `json:"title,omitempty"`
	IDs       IDs    `json:"ids,omitempty"`
}

// Season represents one season of a show with its episodes when requested
// with the episodes extension.
type Season struct {
	Number   int       `json:"number"`
	IDs      IDs       `json:"ids,omitempty"`
	Episodes []Episode `json:"episodes,omitempty"`
}

// SearchResult is one hit returned by the search endpoint. Exactly one of
// Movie/Show/Episode is set depending on Type.
type SearchResult struct {
	Type    string   `json:"type"` // "movie", "show", "episode", "person", "list"
	Score   float64  `json:"score"`
	Movie   *Movie   `json:"movie,omitempty"`
	Show    *Show    `json:"show,omitempty"`
	Episode *Episode `json:"episode,omitempty"`
}

// Action is a scrobble report action.
type Action string

const (
	ActionStart Action = "start"
	ActionPause Action = "pause"
	ActionStop  Action = "stop"
)

// ScrobbleRequest is the payload for a scrobble report. The target is either
// a bare Movie or a Show+Episode pair. It is built once per media load from
// the player's best guess and enriched in place as canonical identifiers are
// discovered; Progress is refreshed before every report.
type ScrobbleRequest struct {
	Movie      *Movie   `json:"movie,omitempty"`
	Show       *Show    `json:"show,omitempty"`
	Episode    *Episode `json:"episode,omitempty"`
	Progress   float64  `json:"progress"`
	AppVersion string   `json:"app_version,omitempty"`
	AppDate    string   `json:"app_date,omitempty"`
}

// IsMovie reports whether the request targets a bare movie.
func (r *ScrobbleRequest) IsMovie() bool { return r.Movie != nil }

// Title returns the guessed title of the scrobble target.
func (r *ScrobbleRequest) Title() string {
	if r.Movie != nil {
		return r.Movie.Title
	}
	if r.Show != nil {
		return r.Show.Title
	}
	return ""
}

// ScrobbleResponse is the service's acknowledgement of a report, carrying
// its canonical identifiers for the reported item.
type ScrobbleResponse struct {
	ID       int64    `json:"id"`
	Action   string   `json:"action"`
	Progress float64  `json:"progress"`
	Movie    *Movie   `json:"movie,omitempty"`
	Show     *Show    `json:"show,omitempty"`
	Episode  *Episode `json:"episode,omitempty"`
}
