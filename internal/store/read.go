package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when no session matches.
var ErrSessionNotFound = errors.New("session not found")

// ReadEntries returns all entries of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session has no entries.
func (s *Store) ReadEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, participant_id, cue_id, level_db, change_index,
		       origin_device_id, miss_count, recorded_at
		FROM entries
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			kind       string
			level      sql.NullFloat64
			index      sql.NullInt64
			recordedAt int64
		)
		if err := rows.Scan(&e.SessionID, &e.Seq, &kind, &e.ParticipantID, &e.CueID,
			&level, &index, &e.OriginDeviceID, &e.MissCount, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		if level.Valid {
			v := level.Float64
			e.LevelDB = &v
		}
		if index.Valid {
			v := index.Int64
			e.ChangeIndex = &v
		}
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// ListSessions returns all sessions, oldest first. Sessions started in the
// same millisecond are ordered by id.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, device_id, started_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess      Session
			startedAt int64
		)
		if err := rows.Scan(&sess.ID, &sess.Room, &sess.DeviceID, &startedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt = time.UnixMilli(startedAt).UTC()
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, ErrSessionNotFound
	}
	return sessions[len(sessions)-1], nil
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess      Session
		startedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room, device_id, started_at FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Room, &sess.DeviceID, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.StartedAt = time.UnixMilli(startedAt).UTC()
	return sess, nil
}
