package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RotateDatabase renames the existing database file with a timestamp suffix
// so the application can create a fresh database when schema setup fails.
//
// Example: printers.db -> printers.db.backup.2026-08-24T10-31-05
//
// The backup file is left in place for manual recovery. If settings is
// provided, rotation details are recorded under SettingDatabaseRotation so
// the caller can surface a warning.
func RotateDatabase(dbPath string, settings SettingsStore) (string, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return "", fmt.Errorf("cannot rotate in-memory database")
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return "", fmt.Errorf("database file does not exist: %s", dbPath)
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	backupPath := fmt.Sprintf("%s.backup.%s", dbPath, timestamp)

	walPath := dbPath + "-wal"
	shmPath := dbPath + "-shm"

	if err := os.Rename(dbPath, backupPath); err != nil {
		return "", fmt.Errorf("failed to rename database: %w", err)
	}

	// Rotate the WAL and SHM files too (non-fatal if they don't exist)
	if _, err := os.Stat(walPath); err == nil {
		walBackup := fmt.Sprintf("%s-wal.backup.%s", dbPath, timestamp)
		_ = os.Rename(walPath, walBackup)
	}
	if _, err := os.Stat(shmPath); err == nil {
		shmBackup := fmt.Sprintf("%s-shm.backup.%s", dbPath, timestamp)
		_ = os.Rename(shmPath, shmBackup)
	}

	if settings != nil {
		rotationInfo := map[string]interface{}{
			"rotated_at":  timestamp,
			"backup_path": backupPath,
			"original_db": dbPath,
		}
		if err := settings.SetValue(SettingDatabaseRotation, rotationInfo); err != nil {
			if storageLogger != nil {
				storageLogger.Warn("Failed to record rotation in settings", "error", err)
			}
			// Non-fatal - rotation still succeeded
		}
	}

	return backupPath, nil
}

// CleanupOldBackups removes old database backup files, keeping only the N
// most recent, so repeated rotation events don't accumulate on disk.
func CleanupOldBackups(dbPath string, keepCount int) error {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}

	if keepCount < 0 {
		keepCount = 0
	}

	dir := filepath.Dir(dbPath)
	baseName := filepath.Base(dbPath)

	pattern := fmt.Sprintf("%s.backup.*", baseName)
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("failed to find backup files: %w", err)
	}

	if len(matches) <= keepCount {
		return nil
	}

	type backupFile struct {
		path    string
		modTime time.Time
	}

	backups := make([]backupFile, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{
			path:    match,
			modTime: info.ModTime(),
		})
	}

	// Newest first
	for i := 0; i < len(backups); i++ {
		for j := i + 1; j < len(backups); j++ {
			if backups[j].modTime.After(backups[i].modTime) {
				backups[i], backups[j] = backups[j], backups[i]
			}
		}
	}

	var removed int
	for i := keepCount; i < len(backups); i++ {
		if err := os.Remove(backups[i].path); err != nil {
			if storageLogger != nil {
				storageLogger.Warn("Failed to remove old backup", "path", backups[i].path, "error", err)
			}
		} else {
			removed++
		}
	}

	if storageLogger != nil && removed > 0 {
		storageLogger.Info("Cleaned up old database backups", "removed", removed, "kept", keepCount)
	}

	return nil
}
