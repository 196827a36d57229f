package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store persists Keywarden's API key records. The default backend is an
// embedded SQLite database; Postgres and MySQL are supported for deployments
// that already run a relational server.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore creates a SQLite-backed store rooted at dataDir. Pass an empty
// string for an in-memory database (used by tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "keywarden.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open("sqlite", dsn)
}

// Open connects to the key store using the given driver ("sqlite", "pgx",
// or "mysql") and DSN, and bootstraps the schema.
func Open(driver, dsn string) (*Store, error) {
	if driver == "mysql" {
		dsn = ensureParseTime(dsn)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate key store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Driver returns the SQL driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// ensureParseTime appends parseTime=true to a MySQL DSN so DATETIME columns
// scan into time.Time.
func ensureParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
