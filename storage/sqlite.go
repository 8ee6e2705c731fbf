package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Logger interface for storage operations
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
	WarnRateLimited(key string, interval time.Duration, msg string, context ...interface{})
}

// Global logger for storage package
var storageLogger Logger

// SetLogger sets the logger for the storage package
func SetLogger(logger Logger) {
	storageLogger = logger
}

// SQLiteStore implements PrinterStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	dbPath string // Store path for backup operations
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// NewSQLiteStore creates a new SQLite-based printer store
// If dbPath is empty, uses in-memory database (:memory:)
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithSettings(dbPath, nil)
}

// NewSQLiteStoreWithSettings creates a new SQLite-based printer store with an
// optional settings store for tracking rotation events. If settings is
// provided, a corruption rotation sets a flag the caller can surface.
func NewSQLiteStoreWithSettings(dbPath string, settings SettingsStore) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Connection pool settings for SQLite:
	// - MaxOpenConns: Allow multiple connections for reads (WAL mode supports this)
	// - MaxIdleConns: Keep some connections ready to reduce open/close overhead
	// - ConnMaxLifetime: Prevent stale connections
	// Note: SQLite handles write serialization internally with busy_timeout
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Enable foreign keys and set pragmas for better performance
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for busy retries
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()

		// If schema initialization fails and we have a real database file
		// (not in-memory), rotate the corrupted database and try again fresh
		if dbPath != ":memory:" {
			if storageLogger != nil {
				storageLogger.Error("Database schema initialization failed, attempting to rotate database",
					"error", err, "path", dbPath)
			}

			backupPath, rotateErr := RotateDatabase(dbPath, settings)
			if rotateErr != nil {
				return nil, fmt.Errorf("failed to initialize schema and unable to rotate database: %w (rotation error: %v)", err, rotateErr)
			}

			if storageLogger != nil {
				storageLogger.Warn("Database rotated due to migration failure - starting with fresh database",
					"backupPath", backupPath,
					"newPath", dbPath,
					"originalError", err.Error())
			}

			return NewSQLiteStoreWithSettings(dbPath, settings)
		}

		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS printers (
		local_id TEXT PRIMARY KEY,
		remote_id TEXT,
		remote_payload BLOB,
		name TEXT NOT NULL,
		hostname TEXT NOT NULL,
		api_key TEXT NOT NULL DEFAULT '',
		username TEXT,
		password TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		needs_remote_update BOOLEAN NOT NULL DEFAULT 0,
		last_modified DATETIME NOT NULL,
		supports_sd_card BOOLEAN NOT NULL DEFAULT 1,
		camera_orientation INTEGER NOT NULL DEFAULT 0,
		invert_x BOOLEAN NOT NULL DEFAULT 0,
		invert_y BOOLEAN NOT NULL DEFAULT 0,
		invert_z BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_printers_remote_id ON printers(remote_id);
	CREATE INDEX IF NOT EXISTS idx_printers_is_default ON printers(is_default);
	CREATE INDEX IF NOT EXISTS idx_printers_order ON printers(position, name);
	CREATE INDEX IF NOT EXISTS idx_printers_dirty ON printers(needs_remote_update);

	-- Synced records deleted locally, pending deletion on the remote store
	CREATE TABLE IF NOT EXISTS remote_tombstones (
		remote_id TEXT PRIMARY KEY,
		deleted_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations handles schema migrations for existing databases
func (s *SQLiteStore) runMigrations() error {
	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		// Table might not exist yet, treat as version 0
		currentVersion = 0
	}

	// Migration 1 -> 2: Add camera calibration columns
	// Databases created before camera support lack orientation and axis flags
	if currentVersion < 2 {
		var tableExists int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='printers'").Scan(&tableExists)
		if err == nil && tableExists > 0 {
			columns := []string{
				"camera_orientation INTEGER NOT NULL DEFAULT 0",
				"invert_x BOOLEAN NOT NULL DEFAULT 0",
				"invert_y BOOLEAN NOT NULL DEFAULT 0",
				"invert_z BOOLEAN NOT NULL DEFAULT 0",
			}
			for _, col := range columns {
				_, err = s.db.Exec(fmt.Sprintf(`ALTER TABLE printers ADD COLUMN %s`, col))
				if err != nil && !strings.Contains(err.Error(), "duplicate column") {
					return fmt.Errorf("failed to add column %s: %w", col, err)
				}
			}
		}

		_, err = s.db.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (2, ?)`, time.Now())
		if err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}

	return nil
}

// Stats returns storage statistics
func (s *SQLiteStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var printers, defaults, dirty, tombstones int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM printers").Scan(&printers); err != nil {
		return nil, fmt.Errorf("failed to count printers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM printers WHERE is_default = 1").Scan(&defaults); err != nil {
		return nil, fmt.Errorf("failed to count defaults: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM printers WHERE needs_remote_update = 1").Scan(&dirty); err != nil {
		return nil, fmt.Errorf("failed to count dirty printers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM remote_tombstones").Scan(&tombstones); err != nil {
		return nil, fmt.Errorf("failed to count tombstones: %w", err)
	}

	stats["printers"] = printers
	stats["defaults"] = defaults
	stats["needs_remote_update"] = dirty
	stats["tombstones"] = tombstones

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err == nil {
		stats["schema_version"] = version
	}

	return stats, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
