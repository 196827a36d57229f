package config

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	for _, m := range s.migrations() {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// migrations returns the ordered schema statements for the active driver.
// The dialects differ only in auto-increment, timestamp, and index syntax.
func (s *Store) migrations() []string {
	var idCol, timeType, keyCol string
	switch s.driver {
	case "pgx":
		idCol = "id BIGSERIAL PRIMARY KEY"
		timeType = "TIMESTAMPTZ"
		keyCol = "TEXT"
	case "mysql":
		idCol = "id BIGINT PRIMARY KEY AUTO_INCREMENT"
		timeType = "DATETIME(6)"
		keyCol = "VARCHAR(128)" // MySQL cannot index unbounded TEXT
	default: // sqlite
		idCol = "id INTEGER PRIMARY KEY AUTOINCREMENT"
		timeType = "DATETIME"
		keyCol = "TEXT"
	}

	table := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS api_keys (
		%s,
		key_id %s NOT NULL UNIQUE,
		secret_hash %s NOT NULL UNIQUE,
		name %s NOT NULL,
		role %s NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at %s,
		created_at %s NOT NULL,
		last_used_at %s,
		created_by %s NOT NULL DEFAULT '',
		description TEXT NOT NULL`,
		idCol, keyCol, keyCol, keyCol, keyCol, timeType, timeType, timeType, keyCol)

	if s.driver == "mysql" {
		// MySQL has no CREATE INDEX IF NOT EXISTS; declare the secondary
		// index inline instead.
		return []string{table + ",\n\t\tKEY idx_api_keys_expires_at (expires_at)\n\t)"}
	}

	return []string{
		table + "\n\t)",
		`CREATE INDEX IF NOT EXISTS idx_api_keys_expires_at ON api_keys(expires_at)`,
	}
}
