package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/errors"
)

// Known settings keys.
const (
	SettingLastBackupAt = "last_backup_at"
)

// Settings is a small key/value table for app state.
type Settings struct {
	db *sql.DB
}

// NewSettings creates a settings store over db.
func NewSettings(db *sql.DB) *Settings {
	return &Settings{db: db}
}

// Get returns the value for key and whether it was set.
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewStorage(err)
	}
	return value, true, nil
}

// Set writes key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *Settings) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}
