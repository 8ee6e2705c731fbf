package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a printer doesn't exist
	ErrNotFound = errors.New("printer not found")
	// ErrDuplicate is returned when trying to insert a printer whose local id already exists
	ErrDuplicate = errors.New("printer already exists")
	// ErrInvalidID is returned when a local id is empty
	ErrInvalidID = errors.New("invalid or empty local id")
	// ErrInvalidName is returned when a printer name is empty
	ErrInvalidName = errors.New("invalid or empty printer name")
)

// PrinterStore is the interface for printer record storage.
// Lookup misses are reported as ErrNotFound; storage failures are wrapped
// and propagated, never swallowed.
type PrinterStore interface {
	// Insert adds a new printer, assigning LocalID when absent and stamping
	// LastModified. Returns ErrDuplicate if the local id already exists.
	Insert(ctx context.Context, printer *Printer) error

	// Get retrieves a printer by local id
	Get(ctx context.Context, localID string) (*Printer, error)

	// GetByRemoteID retrieves a printer by its remote record identity
	GetByRemoteID(ctx context.Context, remoteID string) (*Printer, error)

	// GetByName retrieves the first printer with the given name in list order
	GetByName(ctx context.Context, name string) (*Printer, error)

	// GetDefault retrieves the printer flagged as default
	GetDefault(ctx context.Context) (*Printer, error)

	// List returns all printers ordered by position, then name
	List(ctx context.Context) ([]*Printer, error)

	// ListNeedingRemoteUpdate returns printers flagged for outbound sync
	ListNeedingRemoteUpdate(ctx context.Context) ([]*Printer, error)

	// Update rewrites an existing printer row and stamps LastModified.
	// The default flag is not touched; use SetDefault for that.
	Update(ctx context.Context, printer *Printer) error

	// SetDefault makes the given printer the only default, atomically
	SetDefault(ctx context.Context, localID string) error

	// Delete removes a printer, tombstoning its remote identity if synced
	Delete(ctx context.Context, localID string) error

	// DeleteAll removes every printer, tombstoning the synced ones
	DeleteAll(ctx context.Context) error

	// ResetRemoteIdentity clears remote identity on every printer, marks all
	// of them for re-upload, and drops pending tombstones, in one batch
	ResetRemoteIdentity(ctx context.Context) error

	// ApplyRemoteIdentity writes back a remote (id, payload) pair after a
	// successful upload and clears the dirty flag
	ApplyRemoteIdentity(ctx context.Context, localID, remoteID string, payload []byte) error

	// ApplyRemotePayload refreshes the cached remote payload for a synced printer
	ApplyRemotePayload(ctx context.Context, remoteID string, payload []byte) error

	// ListTombstones returns pending remote deletions, oldest first
	ListTombstones(ctx context.Context) ([]*Tombstone, error)

	// DeleteTombstone removes a tombstone once its remote deletion finished
	DeleteTombstone(ctx context.Context, remoteID string) error

	// Stats returns storage statistics (record count, dirty count, etc)
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the storage connection
	Close() error
}

// SettingsStore handles app-level key/value settings (remote account
// fingerprint, rotation flags, etc.)
type SettingsStore interface {
	// SetValue stores any JSON-serializable settings value
	SetValue(key string, value interface{}) error
	// GetValue retrieves a settings value; dest is unchanged when the key is absent
	GetValue(key string, dest interface{}) error
	// DeleteValue removes a stored settings value by key
	DeleteValue(key string) error
	// Close closes the database connection
	Close() error
}
