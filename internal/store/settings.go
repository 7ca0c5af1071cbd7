package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the value of an operational setting.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	q := s.rebind(`SELECT setting_value FROM settings WHERE setting_key = ?`)
	if err := s.db.GetContext(ctx, &value, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores or replaces an operational setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	// Delete-then-insert keeps the upsert portable across all three drivers.
	delQ := s.rebind(`DELETE FROM settings WHERE setting_key = ?`)
	if _, err := s.db.ExecContext(ctx, delQ, key); err != nil {
		return fmt.Errorf("clear setting: %w", err)
	}
	insQ := s.rebind(`INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)`)
	if _, err := s.db.ExecContext(ctx, insQ, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
