package printers

import (
	"bytes"
	"context"

	"github.com/google/uuid"

	"printdock/storage"
)

// WorkingView is a disposable, task-local snapshot of the authoritative
// record set. A background task reads and edits the snapshot freely, stages
// inserts and deletions, and commits everything with Save. The view must not
// be shared across goroutines.
//
// The default flag cannot be changed through a view; use
// Manager.ChangeDefault. A flag edited on a snapshot record is ignored on
// save.
type WorkingView struct {
	manager *Manager
	records map[string]*storage.Printer
	base    map[string]*storage.Printer
	deleted map[string]bool
}

// WorkingView creates a snapshot of the current authoritative records for a
// background task.
func (m *Manager) WorkingView() *WorkingView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := &WorkingView{
		manager: m,
		records: make(map[string]*storage.Printer, len(m.records)),
		base:    make(map[string]*storage.Printer, len(m.records)),
		deleted: make(map[string]bool),
	}
	for id, p := range m.records {
		v.records[id] = p.Clone()
		v.base[id] = p.Clone()
	}
	return v
}

// Get returns the view's editable copy of a record, or nil when absent.
// Edits to the returned record are committed by the next Save.
func (v *WorkingView) Get(localID string) *storage.Printer {
	return v.records[localID]
}

// GetByRemoteID returns the view's editable copy of the record with the
// given remote identity, or nil.
func (v *WorkingView) GetByRemoteID(remoteID string) *storage.Printer {
	if remoteID == "" {
		return nil
	}
	for _, p := range v.records {
		if p.RemoteID == remoteID {
			return p
		}
	}
	return nil
}

// GetByName returns the view's editable copy of the first record with the
// given name in list order, or nil.
func (v *WorkingView) GetByName(name string) *storage.Printer {
	if name == "" {
		return nil
	}
	for _, p := range v.sorted() {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Default returns the view's copy of the record holding the default flag,
// or nil.
func (v *WorkingView) Default() *storage.Printer {
	for _, p := range v.records {
		if p.IsDefault {
			return p
		}
	}
	return nil
}

// List returns the view's records in list order
func (v *WorkingView) List() []*storage.Printer {
	return v.sorted()
}

func (v *WorkingView) sorted() []*storage.Printer {
	records := make([]*storage.Printer, 0, len(v.records))
	for _, p := range v.records {
		records = append(records, p)
	}
	sortRecords(records)
	return records
}

// Add stages a new record for insertion, assigning a local id when absent.
// The record is queued for upload. Returns the staged copy.
func (v *WorkingView) Add(printer *storage.Printer) *storage.Printer {
	if printer == nil {
		return nil
	}

	record := printer.Clone()
	if record.LocalID == "" {
		record.LocalID = uuid.NewString()
	}
	record.NeedsRemoteUpdate = true

	v.records[record.LocalID] = record
	delete(v.deleted, record.LocalID)
	return record
}

// Remove stages a record for deletion. Removing a record that was only
// staged by Add simply unstages it.
func (v *WorkingView) Remove(localID string) {
	delete(v.records, localID)
	if v.base[localID] != nil {
		v.deleted[localID] = true
	}
}

// Save commits the view's pending changes: staged deletions, staged inserts,
// and every snapshot record whose fields were edited. Edited records are
// merged field-by-field against the current authoritative state (a field
// the view changed wins, untouched fields keep the authoritative value),
// then written to the store and installed into the authoritative view before
// Save returns. Committed changes queue the record for upload.
//
// Any storage error aborts the sequence and is returned; records already
// committed by this Save stay committed and consistent, the rest keep their
// pending edits, and the caller decides whether to retry. Saving an edit to
// a record deleted underneath the view fails with storage.ErrNotFound, while
// a record the view carried but never touched just falls out of the
// snapshot. Whether the commit finished or aborted, Save settles the default
// flag over the state it leaves behind. After a successful Save the view
// tracks the newly committed state, so a second Save with no further edits
// is a no-op.
func (v *WorkingView) Save(ctx context.Context) error {
	m := v.manager

	m.mu.Lock()
	defer m.mu.Unlock()

	commitErr := v.commitLocked(ctx)

	// Deletions land before inserts and edits, so even an aborted commit
	// may have removed the default. Settle the flag on every exit.
	if err := m.promoteSuccessorLocked(ctx); err != nil {
		if commitErr == nil {
			return err
		}
		if m.logger != nil {
			m.logger.Error("Failed to reassign default printer after aborted save", "error", err)
		}
	}
	return commitErr
}

func (v *WorkingView) commitLocked(ctx context.Context) error {
	m := v.manager

	for id := range v.deleted {
		err := m.store.Delete(ctx, id)
		if err != nil && err != storage.ErrNotFound {
			return err
		}
		delete(m.records, id)
		delete(v.base, id)
		delete(v.deleted, id)
	}

	for id, edited := range v.records {
		base := v.base[id]
		if base == nil {
			// Staged insert. The default flag is settled by Save once the
			// whole batch is in.
			record := edited.Clone()
			record.IsDefault = false
			if err := m.store.Insert(ctx, record); err != nil {
				return err
			}
			m.records[id] = record
			v.records[id] = record.Clone()
			v.base[id] = record.Clone()
			continue
		}

		current, ok := m.records[id]
		if !ok {
			// Deleted underneath the view. Only an actual edit turns that
			// into a conflict; an untouched record leaves the snapshot.
			if _, touched := mergeRecord(base, base, edited); touched {
				return storage.ErrNotFound
			}
			delete(v.records, id)
			delete(v.base, id)
			continue
		}

		merged, touched := mergeRecord(current, base, edited)
		if !touched {
			continue
		}
		merged.NeedsRemoteUpdate = true

		if err := m.store.Update(ctx, merged); err != nil {
			return err
		}
		m.records[id] = merged
		v.records[id] = merged.Clone()
		v.base[id] = merged.Clone()
	}

	return nil
}

// mergeRecord folds a working view's edits into the current authoritative
// record: a field the view changed relative to its base snapshot wins,
// untouched fields keep the authoritative value. IsDefault, NeedsRemoteUpdate
// and LastModified are bookkeeping owned by the manager and the store, never
// taken from the view. Reports whether the view touched anything.
func mergeRecord(current, base, edited *storage.Printer) (*storage.Printer, bool) {
	merged := current.Clone()
	touched := false

	if edited.Name != base.Name {
		merged.Name = edited.Name
		touched = true
	}
	if edited.Hostname != base.Hostname {
		merged.Hostname = edited.Hostname
		touched = true
	}
	if edited.APIKey != base.APIKey {
		merged.APIKey = edited.APIKey
		touched = true
	}
	if edited.Username != base.Username {
		merged.Username = edited.Username
		touched = true
	}
	if edited.Password != base.Password {
		merged.Password = edited.Password
		touched = true
	}
	if edited.Position != base.Position {
		merged.Position = edited.Position
		touched = true
	}
	if edited.RemoteID != base.RemoteID {
		merged.RemoteID = edited.RemoteID
		touched = true
	}
	if !bytes.Equal(edited.RemotePayload, base.RemotePayload) {
		merged.RemotePayload = append([]byte(nil), edited.RemotePayload...)
		touched = true
	}
	if edited.SupportsSDCard != base.SupportsSDCard {
		merged.SupportsSDCard = edited.SupportsSDCard
		touched = true
	}
	if edited.CameraOrientation != base.CameraOrientation {
		merged.CameraOrientation = edited.CameraOrientation
		touched = true
	}
	if edited.InvertX != base.InvertX {
		merged.InvertX = edited.InvertX
		touched = true
	}
	if edited.InvertY != base.InvertY {
		merged.InvertY = edited.InvertY
		touched = true
	}
	if edited.InvertZ != base.InvertZ {
		merged.InvertZ = edited.InvertZ
		touched = true
	}

	return merged, touched
}
