package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetDataDir returns the appropriate data directory for the current OS
func GetDataDir(appName string) (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		// Use ProgramData for system-wide or LOCALAPPDATA for user-specific
		baseDir = os.Getenv("LOCALAPPDATA")
		if baseDir == "" {
			baseDir = os.Getenv("PROGRAMDATA")
		}
		if baseDir == "" {
			return "", os.ErrNotExist
		}

	case "darwin": // macOS
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	default: // Linux and other Unix-like systems
		// Try XDG_DATA_HOME first, fallback to ~/.local/share
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	return dataDir, nil
}

// GetDefaultDBPath returns the default printer database path
func GetDefaultDBPath() (string, error) {
	dataDir, err := GetDataDir("PrintDock")
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "printers.db"), nil
}

// GetDefaultSettingsPath returns the default settings database path.
// Settings live in their own file so a printer-database rotation never
// discards the account fingerprint.
func GetDefaultSettingsPath() (string, error) {
	dataDir, err := GetDataDir("PrintDock")
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "settings.db"), nil
}
