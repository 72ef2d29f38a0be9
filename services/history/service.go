package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"watchsync/models"
)

var ErrDatabaseRequired = errors.New("database handle not provided")

// Service persists terminal scrobble outcomes so users can see what the
// app reported and why a session ended the way it did.
type Service struct {
	db *sql.DB
}

// NewService constructs a history service over an open, migrated database.
func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, ErrDatabaseRequired
	}
	return &Service{db: db}, nil
}

// Record stores one terminal outcome.
func (s *Service) Record(ctx context.Context, rec models.ScrobbleRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrobbles (session_id, media_type, title, year, season, episode, trakt_id, outcome, progress, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.MediaType, rec.Title, rec.Year, rec.Season, rec.Episode, rec.TraktID, rec.Outcome, rec.Progress, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("record scrobble: %w", err)
	}
	return nil
}

// Recent returns the most recent outcomes, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.ScrobbleRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, media_type, title, year, season, episode, trakt_id, outcome, progress, recorded_at
		FROM scrobbles
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scrobbles: %w", err)
	}
	defer rows.Close()

	records := make([]models.ScrobbleRecord, 0, limit)
	for rows.Next() {
		var rec models.ScrobbleRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.MediaType, &rec.Title, &rec.Year,
			&rec.Season, &rec.Episode, &rec.TraktID, &rec.Outcome, &rec.Progress, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan scrobble: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear removes all recorded outcomes.
func (s *Service) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scrobbles`); err != nil {
		return fmt.Errorf("clear scrobbles: %w", err)
	}
	return nil
}
