package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store persists Relay's authoritative state: API keys, usage records, and
// operational settings. The default backend is an embedded SQLite database;
// postgres and mysql are supported for deployments that share the key and
// usage state across nodes.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Options configures the backing database.
type Options struct {
	// Driver is one of "sqlite" (default), "postgres", "mysql".
	Driver string
	// DSN is the connection string for postgres/mysql. Ignored for sqlite.
	DSN string
	// DataDir is the directory holding the SQLite file. Empty means in-memory.
	DataDir string
}

// New opens (and migrates) a store with the given options.
func New(opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "sqlite"
	}

	var db *sqlx.DB
	var err error

	switch driver {
	case "sqlite":
		var dsn string
		if opts.DataDir == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(opts.DataDir, "relay.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	case "postgres":
		db, err = sqlx.Connect("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	case "mysql":
		db, err = sqlx.Connect("mysql", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (available: sqlite, postgres, mysql)", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// NewSQLite opens the default embedded store. Pass empty string for in-memory.
func NewSQLite(dataDir string) (*Store, error) {
	return New(Options{Driver: "sqlite", DataDir: dataDir})
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the active database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// rebind converts "?" placeholders to the active driver's bindvar style.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}
