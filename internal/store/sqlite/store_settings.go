package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

// ConfigKey is the settings row holding the client configuration record.
const ConfigKey = "flo-config"

// GetSetting returns the value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// PutSetting inserts or replaces the value stored under key.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// SettingStore exposes a single settings row as a settings.Store.
type SettingStore struct {
	store *Store
	key   string
}

// SettingStore returns a store bound to key.
func (s *Store) SettingStore(key string) *SettingStore {
	return &SettingStore{store: s, key: key}
}

// Load returns the raw row value, or nil when the row is absent.
func (ss *SettingStore) Load(ctx context.Context) ([]byte, error) {
	v, ok, err := ss.store.GetSetting(ctx, ss.key)
	if err != nil || !ok {
		return nil, err
	}
	return []byte(v), nil
}

// Save replaces the row value.
func (ss *SettingStore) Save(ctx context.Context, raw []byte) error {
	return ss.store.PutSetting(ctx, ss.key, string(raw))
}
