package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one Start attempt of the facade.
type Session struct {
	ID          string
	StartedAt   time.Time
	StoppedAt   time.Time
	FinalStatus string
}

// Open reports whether the session never recorded a stop.
func (s Session) Open() bool {
	return s.StoppedAt.IsZero()
}

// BeginSession records a new Start attempt. Beginning a known session is a
// no-op.
func (s *Store) BeginSession(ctx context.Context, id string, startedAt time.Time) error {
	err := s.exec(ctx,
		`INSERT INTO sessions (id, started_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, formatTime(startedAt),
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// EndSession stamps the stop time and final status of a session.
func (s *Store) EndSession(ctx context.Context, id string, stoppedAt time.Time, status string) error {
	err := s.exec(ctx,
		`UPDATE sessions SET stopped_at = ?, final_status = ? WHERE id = ?`,
		formatTime(stoppedAt), status, id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// LastSession returns the most recently started session, or nil.
func (s *Store) LastSession(ctx context.Context) (*Session, error) {
	var (
		session   Session
		started   string
		stopped   sql.NullString
		finalStat sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, stopped_at, final_status FROM sessions ORDER BY started_at DESC LIMIT 1`,
	).Scan(&session.ID, &started, &stopped, &finalStat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last session: %w", err)
	}
	session.StartedAt = parseTime(started)
	if stopped.Valid {
		session.StoppedAt = parseTime(stopped.String)
	}
	session.FinalStatus = finalStat.String
	return &session, nil
}

// UncleanShutdown reports whether the previous run ended without a clean
// stop: its last session is still open or ended in error.
func (s *Store) UncleanShutdown(ctx context.Context) (bool, error) {
	last, err := s.LastSession(ctx)
	if err != nil || last == nil {
		return false, err
	}
	return last.Open() || last.FinalStatus == "error", nil
}
