package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// #region system-data
// SaveSystemData stores value as JSON under key, replacing any prior value.
func (s *Store) SaveSystemData(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal system data %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO system_data (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save system data %s: %w", key, err)
	}
	return nil
}

// LoadSystemData decodes the value stored under key into dest.
// Returns false when the key has never been saved.
func (s *Store) LoadSystemData(ctx context.Context, key string, dest any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_data WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load system data %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("unmarshal system data %s: %w", key, err)
	}
	return true, nil
}

// #endregion system-data
