package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/hwcd/internal/display"
)

// DefaultMaxSettingsBytes bounds one persisted settings blob.
const DefaultMaxSettingsBytes = 64 << 10

// saveTimeout bounds a settings write issued from inside a frame-serialized call.
const saveTimeout = 2 * time.Second

// Store persists per-display client settings.
type Store struct {
	db               *sql.DB
	maxSettingsBytes int
	now              func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:               db,
		maxSettingsBytes: DefaultMaxSettingsBytes,
		now:              time.Now,
	}
}

// LoadSettings returns the stored settings for a display. ok is false when
// nothing was stored yet, in which case the defaults are returned.
func (s *Store) LoadSettings(ctx context.Context, displayID string) (display.Settings, bool, error) {
	if displayID == "" {
		return display.Settings{}, false, fmt.Errorf("display id is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT settings FROM display_settings WHERE display_id = ?;", displayID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return display.DefaultSettings(), false, nil
	}
	if err != nil {
		return display.Settings{}, false, fmt.Errorf("read display settings: %w", err)
	}

	// Unmarshal on top of the defaults so fields added later keep their default.
	settings := display.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return display.Settings{}, false, fmt.Errorf("stored settings are invalid JSON for display=%q: %w", displayID, err)
	}
	return settings, true, nil
}

// SaveSettings upserts the settings for a display.
func (s *Store) SaveSettings(displayID string, settings display.Settings) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return s.Save(ctx, displayID, settings)
}

// Save is SaveSettings with a caller context.
func (s *Store) Save(ctx context.Context, displayID string, settings display.Settings) error {
	if displayID == "" {
		return fmt.Errorf("display id is empty")
	}

	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if len(b) > s.maxSettingsBytes {
		return fmt.Errorf("display settings exceed max size (%d bytes)", s.maxSettingsBytes)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO display_settings(display_id, settings, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(display_id) DO UPDATE SET
  settings = excluded.settings,
  updated_at = excluded.updated_at;
`, displayID, string(b), now)
	if err != nil {
		return fmt.Errorf("upsert display settings: %w", err)
	}
	return nil
}

// Reset deletes the stored settings for a display.
func (s *Store) Reset(ctx context.Context, displayID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM display_settings WHERE display_id = ?;", displayID); err != nil {
		return fmt.Errorf("delete display settings: %w", err)
	}
	return nil
}
