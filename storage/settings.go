package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// Well-known settings keys
const (
	// SettingRemoteAccount holds the fingerprint of the remote account the
	// local records are currently linked to
	SettingRemoteAccount = "remote_account_fingerprint"
	// SettingDatabaseRotation holds details of the last corruption rotation
	SettingDatabaseRotation = "database_rotation"
)

// SQLiteSettings implements SettingsStore using SQLite
type SQLiteSettings struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSettingsStore creates a new SettingsStore with SQLite backend.
// Kept in a separate database file from the printer store so rotation of a
// corrupt printer database does not lose the account fingerprint.
func NewSettingsStore(dbPath string) (SettingsStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	store := &SQLiteSettings{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *SQLiteSettings) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_app_settings_key ON app_settings(key);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create app_settings schema: %w", err)
	}

	return nil
}

// SetValue stores any JSON-serializable settings value
func (s *SQLiteSettings) SetValue(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal settings value: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO app_settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, string(jsonValue))

	if err != nil {
		return fmt.Errorf("failed to save settings value: %w", err)
	}

	return nil
}

// GetValue retrieves a settings value. When the key is absent, dest is left
// unchanged and no error is returned.
func (s *SQLiteSettings) GetValue(key string, dest interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get settings value: %w", err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return fmt.Errorf("failed to unmarshal settings value: %w", err)
	}

	return nil
}

// DeleteValue removes a key from the settings store
func (s *SQLiteSettings) DeleteValue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM app_settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete settings value: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteSettings) Close() error {
	return s.db.Close()
}
