package printers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"printdock/storage"
)

var (
	// ErrInvariantViolation is returned when more than one record holds the
	// default flag. This signals a bug in a mutation path, not a condition
	// callers are expected to recover from.
	ErrInvariantViolation = errors.New("default printer invariant violated")
	// ErrNoDefault is returned when records exist but none holds the default flag
	ErrNoDefault = errors.New("no default printer")
)

// Logger interface for printer management operations
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Manager owns the authoritative view of the printer records: an in-memory
// record set loaded from the store and updated strictly after each successful
// durable commit, so readers never observe a state older than the last
// returned write. All lookups are served from this view; all mutations go
// through the store first and the view second, under the write lock.
//
// Background tasks must not mutate records returned by the lookup methods;
// lookups return copies, and edits go through a WorkingView instead.
type Manager struct {
	store    storage.PrinterStore
	settings storage.SettingsStore
	logger   Logger

	mu      sync.RWMutex
	records map[string]*storage.Printer
}

// NewManager loads the authoritative view from the store. A store violating
// the default-printer rule (none or several defaults with records present)
// is repaired deterministically before the manager accepts it: the first
// flagged record in list order keeps the flag, or the first record overall is
// promoted when none is flagged.
//
// settings may be nil when remote-account tracking is not used.
func NewManager(ctx context.Context, store storage.PrinterStore, settings storage.SettingsStore, logger Logger) (*Manager, error) {
	m := &Manager{
		store:    store,
		settings: settings,
		logger:   logger,
	}
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load(ctx context.Context) error {
	records, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load printers: %w", err)
	}

	var defaults []*storage.Printer
	for _, p := range records {
		if p.IsDefault {
			defaults = append(defaults, p)
		}
	}

	var repair string
	switch {
	case len(defaults) > 1:
		if m.logger != nil {
			m.logger.Error("Multiple default printers found, repairing",
				"count", len(defaults), "keeping", defaults[0].LocalID)
		}
		repair = defaults[0].LocalID
	case len(defaults) == 0 && len(records) > 0:
		if m.logger != nil {
			m.logger.Warn("No default printer set, promoting first",
				"localId", records[0].LocalID, "name", records[0].Name)
		}
		repair = records[0].LocalID
	}

	if repair != "" {
		if err := m.store.SetDefault(ctx, repair); err != nil {
			return fmt.Errorf("failed to repair default printer: %w", err)
		}
		records, err = m.store.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to reload printers: %w", err)
		}
	}

	m.records = make(map[string]*storage.Printer, len(records))
	for _, p := range records {
		m.records[p.LocalID] = p
	}
	return nil
}

// GetPrinter looks up a record by its local id. Returns nil when absent.
func (m *Manager) GetPrinter(localID string) *storage.Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[localID].Clone()
}

// GetDefaultPrinter returns the record holding the default flag, or nil when
// the store is empty.
func (m *Manager) GetDefaultPrinter() *storage.Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultLocked().Clone()
}

// GetPrinterByRemoteID looks up a record by its remote identity. Returns nil
// when absent or when remoteID is empty.
func (m *Manager) GetPrinterByRemoteID(remoteID string) *storage.Printer {
	if remoteID == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.records {
		if p.RemoteID == remoteID {
			return p.Clone()
		}
	}
	return nil
}

// GetPrinterByName returns the first record with the given name in list
// order. Duplicate names are permitted; the winner is deterministic.
func (m *Manager) GetPrinterByName(name string) *storage.Printer {
	if name == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.sortedLocked() {
		if p.Name == name {
			return p.Clone()
		}
	}
	return nil
}

// ListPrinters returns all records ordered by position, then name (byte-wise,
// case-sensitive), then local id.
func (m *Manager) ListPrinters() []*storage.Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.sortedLocked()
	out := make([]*storage.Printer, len(records))
	for i, p := range records {
		out[i] = p.Clone()
	}
	return out
}

// Count returns the number of records
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// AddPrinter creates a new record. The first record added to an empty store
// becomes the default; later ones never do, whatever the passed-in flag says.
// New records are queued for upload. Returns a copy carrying the assigned
// local id.
func (m *Manager) AddPrinter(ctx context.Context, printer *storage.Printer) (*storage.Printer, error) {
	if printer == nil || printer.Name == "" {
		return nil, storage.ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record := printer.Clone()
	record.IsDefault = m.defaultLocked() == nil
	record.NeedsRemoteUpdate = true

	if err := m.store.Insert(ctx, record); err != nil {
		return nil, err
	}

	m.records[record.LocalID] = record

	if m.logger != nil {
		m.logger.Info("Printer added", "localId", record.LocalID, "name", record.Name,
			"default", record.IsDefault)
	}
	return record.Clone(), nil
}

// UpdatePrinter rewrites an existing record and queues it for upload. The
// default flag is never changed here; ChangeDefault owns it.
func (m *Manager) UpdatePrinter(ctx context.Context, printer *storage.Printer) error {
	if printer == nil || printer.LocalID == "" {
		return storage.ErrInvalidID
	}
	if printer.Name == "" {
		return storage.ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[printer.LocalID]
	if !ok {
		return storage.ErrNotFound
	}

	record := printer.Clone()
	record.IsDefault = current.IsDefault
	record.NeedsRemoteUpdate = true

	if err := m.store.Update(ctx, record); err != nil {
		return err
	}

	m.records[record.LocalID] = record
	return nil
}

// DeletePrinter removes a record. When the record held the default flag, the
// first remaining record in list order is promoted before the call returns.
func (m *Manager) DeletePrinter(ctx context.Context, localID string) error {
	if localID == "" {
		return storage.ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.records[localID]
	if !ok {
		return storage.ErrNotFound
	}

	if err := m.store.Delete(ctx, localID); err != nil {
		return err
	}
	delete(m.records, localID)

	if target.IsDefault {
		return m.promoteSuccessorLocked(ctx)
	}
	return nil
}

// DeleteAllPrinters removes every record, remote-identity caches included
func (m *Manager) DeleteAllPrinters(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteAll(ctx); err != nil {
		return err
	}

	count := len(m.records)
	m.records = make(map[string]*storage.Printer)

	if m.logger != nil {
		m.logger.Info("All printers deleted", "count", count)
	}
	return nil
}

// defaultLocked returns the record holding the default flag, or nil.
// Callers hold at least the read lock.
func (m *Manager) defaultLocked() *storage.Printer {
	for _, p := range m.records {
		if p.IsDefault {
			return p
		}
	}
	return nil
}

// sortedLocked returns the records in list order. Callers hold at least the
// read lock; the returned slice is fresh but the elements are the cached
// records themselves.
func (m *Manager) sortedLocked() []*storage.Printer {
	records := make([]*storage.Printer, 0, len(m.records))
	for _, p := range m.records {
		records = append(records, p)
	}
	sortRecords(records)
	return records
}

// sortRecords sorts by position, then name (byte-wise), then local id,
// matching the store's list order.
func sortRecords(records []*storage.Printer) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.LocalID < b.LocalID
	})
}
