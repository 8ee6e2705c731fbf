// Package config provides TOML configuration loading for printdock
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const configFilename = "printdock.toml"

// Config is the top-level printdock configuration
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
	Sync      SyncConfig      `toml:"sync"`
	Discovery DiscoveryConfig `toml:"discovery"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// SyncConfig holds remote record store connection settings
type SyncConfig struct {
	Enabled             bool   `toml:"enabled"`
	URL                 string `toml:"url"`
	Token               string `toml:"token"`
	PushIntervalSeconds int    `toml:"push_interval_seconds"`
	InsecureSkipVerify  bool   `toml:"insecure_skip_verify"` // Skip TLS verification (dev/testing only)
}

// DiscoveryConfig holds LAN printer discovery settings
type DiscoveryConfig struct {
	Enabled        bool     `toml:"enabled"`
	ServiceTypes   []string `toml:"service_types"`
	Domain         string   `toml:"domain"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Default returns configuration with sensible defaults
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Will use default platform-specific path
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
		Sync: SyncConfig{
			Enabled:             false,
			URL:                 "",
			Token:               "",
			PushIntervalSeconds: 300,
			InsecureSkipVerify:  false,
		},
		Discovery: DiscoveryConfig{
			Enabled:        false,
			ServiceTypes:   []string{"_octoprint._tcp"},
			Domain:         "local.",
			TimeoutSeconds: 15,
		},
	}
}

// Load loads configuration from a TOML file with environment variable
// overrides. Returns an error if the file does not exist or cannot be parsed.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Each key is checked as PRINTDOCK_<KEY> first, then as <KEY>.
func applyEnvOverrides(cfg *Config) {
	if val := getEnv("DB_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := getEnv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := getEnv("LOG_DIR"); val != "" {
		cfg.Logging.Dir = val
	}
	if val := getEnv("SYNC_ENABLED"); val != "" {
		cfg.Sync.Enabled = isTrue(val)
	}
	if val := getEnv("SYNC_URL"); val != "" {
		cfg.Sync.URL = val
		// Providing a URL implies sync unless explicitly disabled
		if getEnv("SYNC_ENABLED") == "" {
			cfg.Sync.Enabled = true
		}
	}
	if val := getEnv("SYNC_TOKEN"); val != "" {
		cfg.Sync.Token = val
	}
	if val := getEnv("SYNC_INTERVAL"); val != "" {
		if interval, err := strconv.Atoi(val); err == nil {
			cfg.Sync.PushIntervalSeconds = interval
		}
	}
	if val := getEnv("SYNC_INSECURE_SKIP_VERIFY"); val != "" {
		cfg.Sync.InsecureSkipVerify = isTrue(val)
	}
	if val := getEnv("DISCOVERY_ENABLED"); val != "" {
		cfg.Discovery.Enabled = isTrue(val)
	}
}

// getEnv returns the PRINTDOCK-prefixed environment variable if set,
// falling back to the unprefixed name
func getEnv(key string) string {
	if val := os.Getenv("PRINTDOCK_" + key); val != "" {
		return val
	}
	return os.Getenv(key)
}

func isTrue(val string) bool {
	lower := strings.ToLower(val)
	return lower == "1" || lower == "true" || lower == "yes"
}

// WriteDefault writes a default configuration file. Fails if the file
// already exists so an edited config is never clobbered.
func WriteDefault(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(Default()); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveConfigPath picks the config file path: environment variable first,
// then the explicit path, then the first existing file in the search paths.
// Returns "" when nothing is found.
func ResolveConfigPath(explicit string) string {
	if val := os.Getenv("PRINTDOCK_CONFIG"); val != "" {
		return val
	}
	if explicit != "" {
		return explicit
	}
	for _, path := range ConfigSearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindConfigFile searches for the config file in platform-appropriate
// locations, returning the path and contents of the first one found
func FindConfigFile() (string, []byte, error) {
	for _, path := range ConfigSearchPaths() {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", configFilename)
}

// ConfigSearchPaths returns an ordered list of paths to search for the
// config file, system locations before user locations
func ConfigSearchPaths() []string {
	var searchPaths []string

	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), "PrintDock", configFilename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", "PrintDock", configFilename))
	default: // Linux and other Unix-like
		searchPaths = append(searchPaths, filepath.Join("/etc/printdock", configFilename))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", "PrintDock", configFilename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library", "Application Support", "PrintDock", configFilename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "printdock", configFilename))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), configFilename))
	}

	searchPaths = append(searchPaths, filepath.Join(".", configFilename))

	return searchPaths
}
