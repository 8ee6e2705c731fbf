package printers

import (
	"context"
	"fmt"

	"printdock/storage"
)

// ResetForRemoteAccountChange severs every record from the remote store:
// remote identity and cached payload cleared, re-upload flagged, in a single
// batch commit propagated to the authoritative view before return. Pending
// tombstones are discarded with it, since they name the previous account's
// identities. Idempotent.
func (m *Manager) ResetForRemoteAccountChange(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.ResetRemoteIdentity(ctx); err != nil {
		return err
	}

	for _, p := range m.records {
		p.RemoteID = ""
		p.RemotePayload = nil
		p.NeedsRemoteUpdate = true
	}

	if m.logger != nil {
		m.logger.Info("Reset remote identities for account change", "printers", len(m.records))
	}
	return nil
}

// EnsureRemoteAccount compares the remote account fingerprint against the
// recorded one and runs the reset when it changed, so local records are
// re-uploaded under the new account instead of colliding with the old one's.
// The first fingerprint ever seen is recorded without resetting.
func (m *Manager) EnsureRemoteAccount(ctx context.Context, fingerprint string) error {
	if m.settings == nil {
		return fmt.Errorf("settings store unavailable")
	}
	if fingerprint == "" {
		return fmt.Errorf("account fingerprint is required")
	}

	var current string
	if err := m.settings.GetValue(storage.SettingRemoteAccount, &current); err != nil {
		return fmt.Errorf("failed to read account fingerprint: %w", err)
	}
	if current == fingerprint {
		return nil
	}

	if current != "" {
		if m.logger != nil {
			m.logger.Info("Remote account changed, resetting local records")
		}
		if err := m.ResetForRemoteAccountChange(ctx); err != nil {
			return err
		}
	}

	if err := m.settings.SetValue(storage.SettingRemoteAccount, fingerprint); err != nil {
		return fmt.Errorf("failed to record account fingerprint: %w", err)
	}
	return nil
}

// ApplyRemoteIdentity links a record to the remote identity assigned after
// an upload and clears its dirty flag. Sync bookkeeping, not a user edit:
// LastModified stays put.
func (m *Manager) ApplyRemoteIdentity(ctx context.Context, localID, remoteID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[localID]
	if !ok {
		return storage.ErrNotFound
	}

	if err := m.store.ApplyRemoteIdentity(ctx, localID, remoteID, payload); err != nil {
		return err
	}

	record.RemoteID = remoteID
	record.RemotePayload = append([]byte(nil), payload...)
	record.NeedsRemoteUpdate = false
	return nil
}

// ApplyRemotePayload refreshes the cached remote payload of a synced record
func (m *Manager) ApplyRemotePayload(ctx context.Context, remoteID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var record *storage.Printer
	for _, p := range m.records {
		if remoteID != "" && p.RemoteID == remoteID {
			record = p
			break
		}
	}
	if record == nil {
		return storage.ErrNotFound
	}

	if err := m.store.ApplyRemotePayload(ctx, remoteID, payload); err != nil {
		return err
	}

	record.RemotePayload = append([]byte(nil), payload...)
	return nil
}

// DeleteByRemoteID removes the record linked to a remote identity after the
// remote store reported it deleted. The matching tombstone, if any, is
// dropped rather than echoed back. The record is removed even when that
// cleanup fails; its error is returned after the removal. Default
// reassignment applies as for any delete.
func (m *Manager) DeleteByRemoteID(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return storage.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var target *storage.Printer
	for _, p := range m.records {
		if p.RemoteID == remoteID {
			target = p
			break
		}
	}
	if target == nil {
		return storage.ErrNotFound
	}

	if err := m.store.Delete(ctx, target.LocalID); err != nil {
		return err
	}
	// The row is gone; the authoritative view must not keep serving it
	// even if the tombstone cleanup fails.
	delete(m.records, target.LocalID)
	stoneErr := m.store.DeleteTombstone(ctx, remoteID)

	if m.logger != nil {
		m.logger.Debug("Printer removed by remote store", "localId", target.LocalID, "remoteId", remoteID)
	}

	if target.IsDefault {
		if err := m.promoteSuccessorLocked(ctx); err != nil {
			return err
		}
	}
	return stoneErr
}

// PrintersNeedingSync returns copies of the records flagged for upload, in
// list order.
func (m *Manager) PrintersNeedingSync() []*storage.Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dirty := []*storage.Printer{}
	for _, p := range m.sortedLocked() {
		if p.NeedsRemoteUpdate {
			dirty = append(dirty, p.Clone())
		}
	}
	return dirty
}

// ListTombstones returns the pending remote deletions, oldest first
func (m *Manager) ListTombstones(ctx context.Context) ([]*storage.Tombstone, error) {
	return m.store.ListTombstones(ctx)
}

// DeleteTombstone drops a tombstone once its remote deletion went through
func (m *Manager) DeleteTombstone(ctx context.Context, remoteID string) error {
	return m.store.DeleteTombstone(ctx, remoteID)
}
