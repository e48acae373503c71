package store

import (
	"context"
	"fmt"
)

// BeginSession records the start of a session.
// Uses ON CONFLICT(id) DO NOTHING so restarting with the same id is harmless.
func (s *Store) BeginSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("begin session: empty session id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, room, device_id, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Room,
		sess.DeviceID,
		sess.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// Append inserts a journal entry.
// Uses ON CONFLICT DO NOTHING for idempotency - a duplicate (session, seq)
// is silently ignored. The session must have been recorded with
// BeginSession first (foreign key constraint).
func (s *Store) Append(ctx context.Context, e Entry) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("append entry seq=%d: unknown kind %q", e.Seq, e.Kind)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries
		(session_id, seq, kind, participant_id, cue_id, level_db, change_index, origin_device_id, miss_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		e.SessionID,
		e.Seq,
		string(e.Kind),
		e.ParticipantID,
		e.CueID,
		e.LevelDB,
		e.ChangeIndex,
		e.OriginDeviceID,
		e.MissCount,
		e.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append entry seq=%d: %w", e.Seq, err)
	}
	return nil
}
