package playback

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"watchsync/models"
	"watchsync/services/history"
	"watchsync/services/trakt"
)

var (
	ErrNotConnected    = errors.New("no tracking account connected")
	ErrSessionNotFound = errors.New("playback session not found")
	ErrGuessRequired   = errors.New("media guess requires a title")
)

const (
	appVersion = "1.0.0"
	appDate    = "2026-09-01"
)

// HistoryRecorder receives terminal scrobble outcomes.
type HistoryRecorder interface {
	Record(ctx context.Context, rec models.ScrobbleRecord) error
}

var _ HistoryRecorder = (*history.Service)(nil)

// session pairs one media load with its scrobble engine.
type session struct {
	id        string
	guess     models.MediaGuess
	engine    *trakt.Engine
	progress  float64
	updatedAt time.Time
}

// Service manages playback sessions. Each session owns one scrobble
// engine; player events are forwarded to it and terminal outcomes land
// in history.
type Service struct {
	tokens   *trakt.TokenManager
	client   *trakt.Client
	recorder HistoryRecorder

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewService constructs the session manager. recorder may be nil when
// history is disabled.
func NewService(tokens *trakt.TokenManager, client *trakt.Client, recorder HistoryRecorder) *Service {
	return &Service{
		tokens:   tokens,
		client:   client,
		recorder: recorder,
		sessions: make(map[string]*session),
	}
}

// StartSession registers a new media load and returns its session ID. No
// report is sent yet; the first playing event triggers resolution.
func (s *Service) StartSession(guess models.MediaGuess) (string, error) {
	if !s.tokens.IsAuthenticated() {
		return "", ErrNotConnected
	}
	if guess.Title == "" {
		return "", ErrGuessRequired
	}

	id := uuid.NewString()
	sess := &session{
		id:        id,
		guess:     guess,
		updatedAt: time.Now().UTC(),
	}
	sess.engine = trakt.NewEngine(s.client, buildRequest(guess), s.listenerFor(sess))

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Printf("[playback] session %s started for %q", id, guess.Title)
	return id, nil
}

// HandleEvent forwards one playback-state transition to the session's
// engine. Unknown states are rejected by the handler layer before this.
func (s *Service) HandleEvent(ctx context.Context, sessionID string, state trakt.PlaybackState, progress float64) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	sess.progress = progress
	sess.updatedAt = time.Now().UTC()
	s.mu.Unlock()

	sess.engine.HandleEvent(ctx, state, progress)
	return nil
}

// SessionStatus reports a session's current engine state.
func (s *Service) SessionStatus(sessionID string) (models.SessionStatus, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return models.SessionStatus{}, err
	}

	state, lastErr := sess.engine.State()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.SessionStatus{
		SessionID: sess.id,
		State:     string(state),
		Error:     lastErr,
		Guess:     sess.guess,
		Progress:  sess.progress,
		UpdatedAt: sess.updatedAt,
	}, nil
}

// EndSession tears a session down, forcing one final stop report when
// playback was still being tracked.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.engine.Close(ctx)

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	log.Printf("[playback] session %s ended", sessionID)
	return nil
}

// Sessions lists the status of every live session.
func (s *Service) Sessions() []models.SessionStatus {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]models.SessionStatus, 0, len(ids))
	for _, id := range ids {
		if status, err := s.SessionStatus(id); err == nil {
			out = append(out, status)
		}
	}
	return out
}

// Close ends every live session, issuing final stop reports where needed.
func (s *Service) Close(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.EndSession(ctx, id); err != nil {
			log.Printf("[playback] close session %s: %v", id, err)
		}
	}
}

func (s *Service) lookup(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// listenerFor builds the engine callback that records terminal outcomes.
func (s *Service) listenerFor(sess *session) trakt.StatusListener {
	return func(state trakt.EngineState, message string) {
		switch state {
		case trakt.EngineScrobbled, trakt.EngineNotFound, trakt.EngineError:
		default:
			return
		}
		if s.recorder == nil {
			return
		}

		req := sess.engine.Request()
		rec := models.ScrobbleRecord{
			SessionID: sess.id,
			MediaType: sess.guess.Type,
			Title:     req.Title(),
			Year:      sess.guess.Year,
			Outcome:   string(state),
			Progress:  req.Progress,
		}
		if req.IsMovie() {
			if req.Movie != nil {
				rec.TraktID = req.Movie.IDs.Trakt
				if req.Movie.Year > 0 {
					rec.Year = req.Movie.Year
				}
			}
		} else if req.Episode != nil {
			rec.Season = req.Episode.Season
			rec.Episode = req.Episode.Number
			rec.TraktID = req.Episode.IDs.Trakt
		}

		if err := s.recorder.Record(context.Background(), rec); err != nil {
			log.Printf("[playback] record outcome for session %s: %v", sess.id, err)
		}
	}
}

// buildRequest maps a media guess onto the wire request the tracking
// service expects.
func buildRequest(guess models.MediaGuess) *trakt.ScrobbleRequest {
	req := &trakt.ScrobbleRequest{
		AppVersion: appVersion,
		AppDate:    appDate,
	}
	ids := trakt.IDs{IMDB: guess.IMDB, TMDB: guess.TMDB, TVDB: guess.TVDB}
	if guess.IsMovie() {
		req.Movie = &trakt.Movie{Title: guess.Title, Year: guess.Year, IDs: ids}
		return req
	}
	req.Show = &trakt.Show{Title: guess.Title, Year: guess.Year, IDs: ids}
	req.Episode = &trakt.Episode{
		Season:    guess.Season,
		Number:    guess.Episode,
		NumberAbs: guess.Absolute,
	}
	return req
}
