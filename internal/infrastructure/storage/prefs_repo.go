package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Well-known preference keys.
const (
	PrefCalmPrompt     = "calm_prompt"
	PrefIntensePrompt  = "intense_prompt"
	PrefFreePlayPrompt = "free_play_prompt"
	PrefLastDuration   = "last_duration_seconds"
)

// PreferenceRepository is a small key-value store for user preferences. It
// implements ports.PreferenceStoragePort.
type PreferenceRepository struct {
	conn *Connection
}

// NewPreferenceRepository creates a preference repository over the given
// connection.
func NewPreferenceRepository(conn *Connection) *PreferenceRepository {
	return &PreferenceRepository{conn: conn}
}

// SetPreference upserts a preference value.
func (r *PreferenceRepository) SetPreference(ctx context.Context, key, value string) error {
	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("could not set preference %q: %w", key, err)
	}
	return nil
}

// GetPreference fetches a preference. The second return value is false for
// absent keys.
func (r *PreferenceRepository) GetPreference(ctx context.Context, key string) (string, bool, error) {
	db, err := r.conn.DB()
	if err != nil {
		return "", false, err
	}

	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("could not get preference %q: %w", key, err)
	}
	return value, true, nil
}

// DeletePreference removes a preference. Deleting an absent key is a no-op.
func (r *PreferenceRepository) DeletePreference(ctx context.Context, key string) error {
	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("could not delete preference %q: %w", key, err)
	}
	return nil
}
