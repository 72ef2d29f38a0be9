package models

import "time"

// MediaGuess is the caller's best description of what is playing. Titles
// and numbers come from filename parsing or player metadata and may be
// wrong; the scrobble engine resolves them against the tracking service.
type MediaGuess struct {
	Type     string `json:"type"` // "movie" or "episode"
	Title    string `json:"title"`
	Year     int    `json:"year,omitempty"`
	Season   int    `json:"season,omitempty"`
	Episode  int    `json:"episode,omitempty"`
	Absolute int    `json:"absolute,omitempty"` // absolute episode number, anime-style
	IMDB     string `json:"imdb,omitempty"`
	TMDB     int    `json:"tmdb,omitempty"`
	TVDB     int    `json:"tvdb,omitempty"`
}

// IsMovie reports whether the guess describes a movie.
func (g MediaGuess) IsMovie() bool { return g.Type == "movie" }

// SessionStatus is the externally visible state of one playback session.
type SessionStatus struct {
	SessionID string     `json:"sessionId"`
	State     string     `json:"state"`
	Error     string     `json:"error,omitempty"`
	Guess     MediaGuess `json:"guess"`
	Progress  float64    `json:"progress"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ScrobbleRecord is one terminal scrobble outcome persisted to history.
type ScrobbleRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	MediaType  string    `json:"mediaType"`
	Title      string    `json:"title"`
	Year       int       `json:"year,omitempty"`
	Season     int       `json:"season,omitempty"`
	Episode    int       `json:"episode,omitempty"`
	TraktID    int       `json:"traktId,omitempty"`
	Outcome    string    `json:"outcome"`
	Progress   float64   `json:"progress"`
	RecordedAt time.Time `json:"recordedAt"`
}
