package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/hwcd/internal/fence"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is one display session lifetime.
type SessionRecord struct {
	SessionID string       `json:"session_id"`
	DisplayID string       `json:"display"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Frames    uint64       `json:"frames"`
	Fences    *fence.Stats `json:"fences,omitempty"`
}

// SessionLog records when display sessions started and how they ended.
type SessionLog struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionLog(db *sql.DB) *SessionLog {
	return &SessionLog{db: db, now: time.Now}
}

// Begin records a new session.
func (l *SessionLog) Begin(ctx context.Context, sessionID, displayID string) error {
	if sessionID == "" || displayID == "" {
		return fmt.Errorf("session id and display id are required")
	}
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO session_log(session_id, display_id, started_at) VALUES(?, ?, ?);",
		sessionID, displayID, l.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// End closes a session with its final counters.
func (l *SessionLog) End(ctx context.Context, sessionID string, frames uint64, stats fence.Stats) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal fence stats: %w", err)
	}
	res, err := l.db.ExecContext(ctx,
		"UPDATE session_log SET ended_at = ?, frames = ?, fence_stats = ? WHERE session_id = ?;",
		l.now().UTC().Format(time.RFC3339Nano), int64(frames), string(b), sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// Recent returns up to limit sessions of a display, newest first.
func (l *SessionLog) Recent(ctx context.Context, displayID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT session_id, display_id, started_at, ended_at, frames, fence_stats
FROM session_log
WHERE display_id = ?
ORDER BY started_at DESC
LIMIT ?;`, displayID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec     SessionRecord
			started string
			ended   sql.NullString
			stats   sql.NullString
			frames  int64
		)
		if err := rows.Scan(&rec.SessionID, &rec.DisplayID, &started, &ended, &frames, &stats); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Frames = uint64(frames)
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ended.Valid {
			t, err := time.Parse(time.RFC3339Nano, ended.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			rec.EndedAt = &t
		}
		if stats.Valid {
			var st fence.Stats
			if err := json.Unmarshal([]byte(stats.String), &st); err != nil {
				return nil, fmt.Errorf("decode fence stats: %w", err)
			}
			rec.Fences = &st
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
