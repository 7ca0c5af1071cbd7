package store

import (
	"fmt"
	"strings"
)

// migrate applies the schema. DDL is written in the portable subset shared by
// SQLite, PostgreSQL, and MySQL: string primary keys, no auto-increment, and
// timestamps populated from Go rather than column defaults.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(40) PRIMARY KEY,
			key_hash VARCHAR(64) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			description VARCHAR(1024) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			rate_limit INTEGER NOT NULL DEFAULT 1000,
			usage_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			last_used_at TIMESTAMP NULL
		)`,

		`CREATE TABLE IF NOT EXISTS usage_logs (
			id VARCHAR(40) PRIMARY KEY,
			api_key_id VARCHAR(40) NOT NULL,
			provider VARCHAR(64) NOT NULL,
			model VARCHAR(128) NOT NULL,
			endpoint VARCHAR(128) NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			timestamp TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_key ON usage_logs(api_key_id)`,

		`CREATE TABLE IF NOT EXISTS settings (
			setting_key VARCHAR(128) PRIMARY KEY,
			setting_value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if s.driver == "mysql" {
			// MySQL predates CREATE INDEX IF NOT EXISTS; a duplicate index
			// error on re-run is a no-op for our purposes.
			m = strings.Replace(m, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX", 1)
		}
		if _, err := s.db.Exec(m); err != nil {
			if s.driver == "mysql" && strings.Contains(strings.ToLower(err.Error()), "duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
