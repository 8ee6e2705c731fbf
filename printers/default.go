package printers

import (
	"context"
	"fmt"
	"time"

	"printdock/storage"
)

// ChangeDefault moves the default flag to the given record. The store flips
// both flags in one statement, so no reader ever observes two defaults or a
// missing one; the authoritative view mirrors the flip under the write lock
// before the call returns. Changing to the current default is a no-op.
func (m *Manager) ChangeDefault(ctx context.Context, localID string) error {
	if localID == "" {
		return storage.ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.records[localID]
	if !ok {
		return storage.ErrNotFound
	}
	if target.IsDefault {
		return nil
	}

	if err := m.store.SetDefault(ctx, localID); err != nil {
		return err
	}

	now := time.Now()
	for _, p := range m.records {
		if p.IsDefault {
			p.IsDefault = false
			p.LastModified = now
		}
	}
	target.IsDefault = true
	target.LastModified = now

	if m.logger != nil {
		m.logger.Debug("Default printer changed", "localId", localID, "name", target.Name)
	}
	return nil
}

// promoteSuccessorLocked hands the default flag to the first record in list
// order when records exist but none holds it. Callers hold the write lock.
func (m *Manager) promoteSuccessorLocked(ctx context.Context) error {
	if len(m.records) == 0 || m.defaultLocked() != nil {
		return nil
	}

	successor := m.sortedLocked()[0]
	if err := m.store.SetDefault(ctx, successor.LocalID); err != nil {
		if m.logger != nil {
			m.logger.Error("Failed to promote new default printer",
				"localId", successor.LocalID, "error", err)
		}
		return fmt.Errorf("failed to promote new default printer: %w", err)
	}

	successor.IsDefault = true
	successor.LastModified = time.Now()

	if m.logger != nil {
		m.logger.Debug("Promoted new default printer",
			"localId", successor.LocalID, "name", successor.Name)
	}
	return nil
}

// CheckDefaultInvariant verifies the default-printer rule: when records
// exist, exactly one holds the flag. A failure here means a mutation path is
// broken; it is reported, never silently tolerated.
func (m *Manager) CheckDefaultInvariant() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return nil
	}

	var defaults int
	for _, p := range m.records {
		if p.IsDefault {
			defaults++
		}
	}

	switch {
	case defaults == 0:
		if m.logger != nil {
			m.logger.Error("Invariant violated: no default printer", "records", len(m.records))
		}
		return ErrNoDefault
	case defaults > 1:
		if m.logger != nil {
			m.logger.Error("Invariant violated: multiple default printers", "count", defaults)
		}
		return ErrInvariantViolation
	}
	return nil
}
