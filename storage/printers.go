package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const printerColumns = `local_id, remote_id, remote_payload, name, hostname, api_key,
		   username, password, position, is_default, needs_remote_update,
		   last_modified, supports_sd_card, camera_orientation, invert_x, invert_y, invert_z`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrinter(row rowScanner) (*Printer, error) {
	printer := &Printer{}
	var remoteID, username, password sql.NullString

	err := row.Scan(
		&printer.LocalID, &remoteID, &printer.RemotePayload, &printer.Name,
		&printer.Hostname, &printer.APIKey, &username, &password,
		&printer.Position, &printer.IsDefault, &printer.NeedsRemoteUpdate,
		&printer.LastModified, &printer.SupportsSDCard, &printer.CameraOrientation,
		&printer.InvertX, &printer.InvertY, &printer.InvertZ,
	)
	if err != nil {
		return nil, err
	}

	printer.RemoteID = remoteID.String
	printer.Username = username.String
	printer.Password = password.String

	// Rows written by a newer build may carry orientation values this build
	// does not know; normalize rather than surface garbage
	if !printer.CameraOrientation.Valid() {
		if storageLogger != nil {
			storageLogger.WarnRateLimited("orientation_"+printer.LocalID, 5*time.Minute,
				"Unknown camera orientation, treating as up",
				"localId", printer.LocalID, "value", int(printer.CameraOrientation))
		}
		printer.CameraOrientation = OrientationUp
	}
	return printer, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Insert adds a new printer. A missing LocalID is assigned a fresh UUID and
// a zero LastModified is stamped with the current time.
func (s *SQLiteStore) Insert(ctx context.Context, printer *Printer) error {
	if printer == nil || printer.Name == "" {
		return ErrInvalidName
	}

	if printer.LocalID == "" {
		printer.LocalID = uuid.NewString()
	}
	if printer.LastModified.IsZero() {
		printer.LastModified = time.Now()
	}

	query := `
		INSERT INTO printers (
			local_id, remote_id, remote_payload, name, hostname, api_key,
			username, password, position, is_default, needs_remote_update,
			last_modified, supports_sd_card, camera_orientation, invert_x, invert_y, invert_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		printer.LocalID, nullIfEmpty(printer.RemoteID), printer.RemotePayload,
		printer.Name, printer.Hostname, printer.APIKey,
		nullIfEmpty(printer.Username), nullIfEmpty(printer.Password),
		printer.Position, printer.IsDefault, printer.NeedsRemoteUpdate,
		printer.LastModified, printer.SupportsSDCard, printer.CameraOrientation,
		printer.InvertX, printer.InvertY, printer.InvertZ,
	)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if storageLogger != nil {
				storageLogger.Debug("Printer already exists", "localId", printer.LocalID, "name", printer.Name)
			}
			return ErrDuplicate
		}
		if storageLogger != nil {
			storageLogger.Error("Failed to insert printer", "localId", printer.LocalID, "name", printer.Name, "error", err)
		}
		return fmt.Errorf("failed to insert printer: %w", err)
	}

	if storageLogger != nil {
		storageLogger.Info("Printer created", "localId", printer.LocalID, "name", printer.Name, "hostname", printer.Hostname)
	}

	return nil
}

// Get retrieves a printer by local id
func (s *SQLiteStore) Get(ctx context.Context, localID string) (*Printer, error) {
	if localID == "" {
		return nil, ErrInvalidID
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+printerColumns+` FROM printers WHERE local_id = ?`, localID)

	printer, err := scanPrinter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return printer, nil
}

// GetByRemoteID retrieves a printer by its remote record identity
func (s *SQLiteStore) GetByRemoteID(ctx context.Context, remoteID string) (*Printer, error) {
	if remoteID == "" {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+printerColumns+` FROM printers WHERE remote_id = ?`, remoteID)

	printer, err := scanPrinter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get printer by remote id: %w", err)
	}
	return printer, nil
}

// GetByName retrieves the first printer with the given name in list order.
// Duplicate names are permitted; the winner is the first row ordered by
// position, then name, then local id.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*Printer, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+printerColumns+` FROM printers WHERE name = ?
		 ORDER BY position, name, local_id LIMIT 1`, name)

	printer, err := scanPrinter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get printer by name: %w", err)
	}
	return printer, nil
}

// GetDefault retrieves the printer flagged as default
func (s *SQLiteStore) GetDefault(ctx context.Context) (*Printer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+printerColumns+` FROM printers WHERE is_default = 1 LIMIT 1`)

	printer, err := scanPrinter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default printer: %w", err)
	}
	return printer, nil
}

// List returns all printers ordered by position ascending, then name.
// Name ties use SQLite's default BINARY collation (byte-wise, case-sensitive),
// with local id as the final disambiguator so the order is fully deterministic.
func (s *SQLiteStore) List(ctx context.Context) ([]*Printer, error) {
	return s.list(ctx, `SELECT `+printerColumns+` FROM printers
		ORDER BY position, name, local_id`)
}

// ListNeedingRemoteUpdate returns printers flagged for outbound sync, in list order
func (s *SQLiteStore) ListNeedingRemoteUpdate(ctx context.Context) ([]*Printer, error) {
	return s.list(ctx, `SELECT `+printerColumns+` FROM printers
		WHERE needs_remote_update = 1 ORDER BY position, name, local_id`)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...interface{}) ([]*Printer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	printers := []*Printer{}
	for rows.Next() {
		printer, err := scanPrinter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, printer)
	}

	return printers, rows.Err()
}

// Update rewrites an existing printer row and stamps LastModified. The
// default flag is deliberately not written here; SetDefault owns it.
func (s *SQLiteStore) Update(ctx context.Context, printer *Printer) error {
	if printer == nil || printer.LocalID == "" {
		return ErrInvalidID
	}
	if printer.Name == "" {
		return ErrInvalidName
	}

	printer.LastModified = time.Now()

	query := `
		UPDATE printers SET
			remote_id = ?, remote_payload = ?, name = ?, hostname = ?, api_key = ?,
			username = ?, password = ?, position = ?, needs_remote_update = ?,
			last_modified = ?, supports_sd_card = ?, camera_orientation = ?,
			invert_x = ?, invert_y = ?, invert_z = ?
		WHERE local_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		nullIfEmpty(printer.RemoteID), printer.RemotePayload,
		printer.Name, printer.Hostname, printer.APIKey,
		nullIfEmpty(printer.Username), nullIfEmpty(printer.Password),
		printer.Position, printer.NeedsRemoteUpdate,
		printer.LastModified, printer.SupportsSDCard, printer.CameraOrientation,
		printer.InvertX, printer.InvertY, printer.InvertZ,
		printer.LocalID,
	)

	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SetDefault makes the given printer the only default. A single statement
// flips the flag on and off so no reader can observe two defaults, and
// last_modified is stamped only on the rows whose flag actually changed.
func (s *SQLiteStore) SetDefault(ctx context.Context, localID string) error {
	if localID == "" {
		return ErrInvalidID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM printers WHERE local_id = ?", localID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check printer: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE printers SET is_default = (local_id = ?), last_modified = ?
		WHERE is_default != (local_id = ?)
	`, localID, time.Now(), localID)
	if err != nil {
		return fmt.Errorf("failed to set default printer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	if storageLogger != nil {
		storageLogger.Debug("Default printer changed", "localId", localID)
	}

	return nil
}

// Delete removes a printer. When the record carried a remote identity a
// tombstone is written in the same transaction so the remote counterpart
// gets cleaned up by the sync worker.
func (s *SQLiteStore) Delete(ctx context.Context, localID string) error {
	if localID == "" {
		return ErrInvalidID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var remoteID sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT remote_id FROM printers WHERE local_id = ?", localID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read printer: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM printers WHERE local_id = ?", localID); err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}

	if remoteID.Valid && remoteID.String != "" {
		if err := addTombstoneWithExecer(ctx, tx, remoteID.String, time.Now()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	if storageLogger != nil {
		storageLogger.Debug("Printer deleted", "localId", localID, "tombstoned", remoteID.String != "")
	}

	return nil
}

// DeleteAll removes every printer, tombstoning the synced ones in the same
// transaction
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO remote_tombstones (remote_id, deleted_at)
		SELECT remote_id, ? FROM printers WHERE remote_id IS NOT NULL AND remote_id != ''
		ON CONFLICT(remote_id) DO UPDATE SET deleted_at = excluded.deleted_at
	`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to tombstone printers: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM printers")
	if err != nil {
		return fmt.Errorf("failed to delete printers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	if storageLogger != nil {
		rows, _ := result.RowsAffected()
		storageLogger.Info("All printers deleted", "count", rows)
	}

	return nil
}

// ResetRemoteIdentity clears the remote identity on every printer and marks
// all of them for re-upload, in one batch. Pending tombstones are dropped in
// the same transaction since they name the previous account's identities.
// LastModified is left untouched, so running this twice is a no-op.
func (s *SQLiteStore) ResetRemoteIdentity(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE printers SET remote_id = NULL, remote_payload = NULL, needs_remote_update = 1
	`)
	if err != nil {
		return fmt.Errorf("failed to reset remote identities: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM remote_tombstones"); err != nil {
		return fmt.Errorf("failed to clear tombstones: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	if storageLogger != nil {
		rows, _ := result.RowsAffected()
		storageLogger.Info("Remote identities reset", "printers", rows)
	}

	return nil
}

// ApplyRemoteIdentity writes back the (remote id, payload) pair assigned by
// the remote store after an upload and clears the dirty flag. Not a
// user-driven write, so LastModified is not stamped.
func (s *SQLiteStore) ApplyRemoteIdentity(ctx context.Context, localID, remoteID string, payload []byte) error {
	if localID == "" {
		return ErrInvalidID
	}
	if remoteID == "" {
		return fmt.Errorf("remote id is required")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE printers SET remote_id = ?, remote_payload = ?, needs_remote_update = 0
		WHERE local_id = ?
	`, remoteID, payload, localID)
	if err != nil {
		return fmt.Errorf("failed to apply remote identity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ApplyRemotePayload refreshes the cached remote payload for a synced printer
func (s *SQLiteStore) ApplyRemotePayload(ctx context.Context, remoteID string, payload []byte) error {
	if remoteID == "" {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE printers SET remote_payload = ? WHERE remote_id = ?", payload, remoteID)
	if err != nil {
		return fmt.Errorf("failed to apply remote payload: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListTombstones returns pending remote deletions, oldest first
func (s *SQLiteStore) ListTombstones(ctx context.Context) ([]*Tombstone, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT remote_id, deleted_at FROM remote_tombstones ORDER BY deleted_at, remote_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()

	tombstones := []*Tombstone{}
	for rows.Next() {
		t := &Tombstone{}
		if err := rows.Scan(&t.RemoteID, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		tombstones = append(tombstones, t)
	}

	return tombstones, rows.Err()
}

// DeleteTombstone removes a tombstone once the remote deletion went through.
// Deleting an absent tombstone is a no-op.
func (s *SQLiteStore) DeleteTombstone(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM remote_tombstones WHERE remote_id = ?", remoteID); err != nil {
		return fmt.Errorf("failed to delete tombstone: %w", err)
	}
	return nil
}

func addTombstoneWithExecer(ctx context.Context, e execer, remoteID string, at time.Time) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO remote_tombstones (remote_id, deleted_at) VALUES (?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET deleted_at = excluded.deleted_at
	`, remoteID, at)
	if err != nil {
		return fmt.Errorf("failed to add tombstone: %w", err)
	}
	return nil
}
