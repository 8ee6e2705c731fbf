package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want 'info'", cfg.Logging.Level)
	}
	if cfg.Sync.Enabled {
		t.Error("Sync should be disabled by default")
	}
	if cfg.Sync.PushIntervalSeconds != 300 {
		t.Errorf("Sync.PushIntervalSeconds = %d, want 300", cfg.Sync.PushIntervalSeconds)
	}
	if len(cfg.Discovery.ServiceTypes) == 0 {
		t.Error("Discovery.ServiceTypes should have a default")
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path should default to empty (platform path), got %q", cfg.Database.Path)
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads valid config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "valid.toml")

		configContent := `
[database]
path = "/tmp/printers.db"

[logging]
level = "debug"

[sync]
enabled = true
url = "https://sync.example.com"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}

		if cfg.Database.Path != "/tmp/printers.db" {
			t.Errorf("Database.Path = %q, want '/tmp/printers.db'", cfg.Database.Path)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q, want 'debug'", cfg.Logging.Level)
		}
		if !cfg.Sync.Enabled {
			t.Error("Sync.Enabled should be true")
		}
		// Unset keys keep defaults
		if cfg.Sync.PushIntervalSeconds != 300 {
			t.Errorf("Sync.PushIntervalSeconds = %d, want default 300", cfg.Sync.PushIntervalSeconds)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "missing.toml")

		_, err := Load(configPath)
		if err == nil {
			t.Fatal("Load() should fail for missing file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("Error should mention 'not found', got: %v", err)
		}
	})

	t.Run("returns error for invalid TOML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.toml")

		if err := os.WriteFile(configPath, []byte("this is not valid TOML {{{}}}"), 0644); err != nil {
			t.Fatalf("Failed to create invalid config: %v", err)
		}

		_, err := Load(configPath)
		if err == nil {
			t.Fatal("Load() should fail for invalid TOML")
		}
	})
}

func TestLoadEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[database]
path = "/from/file.db"

[logging]
level = "info"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	t.Setenv("PRINTDOCK_DB_PATH", "/from/env.db")
	t.Setenv("PRINTDOCK_LOG_LEVEL", "trace")
	t.Setenv("PRINTDOCK_SYNC_URL", "wss://feed.example.com")
	t.Setenv("PRINTDOCK_SYNC_TOKEN", "env-token")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Path != "/from/env.db" {
		t.Errorf("Database.Path = %q, want env override '/from/env.db'", cfg.Database.Path)
	}
	if cfg.Logging.Level != "trace" {
		t.Errorf("Logging.Level = %q, want env override 'trace'", cfg.Logging.Level)
	}
	if cfg.Sync.URL != "wss://feed.example.com" {
		t.Errorf("Sync.URL = %q, want env override", cfg.Sync.URL)
	}
	if cfg.Sync.Token != "env-token" {
		t.Errorf("Sync.Token = %q, want env override", cfg.Sync.Token)
	}
	// Providing a sync URL enables sync
	if !cfg.Sync.Enabled {
		t.Error("Sync.Enabled should be true when SYNC_URL is set")
	}
}

func TestLoadEnvUnprefixedFallback(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(configPath, []byte("[database]\npath = \"/from/file.db\"\n"), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	t.Setenv("DB_PATH", "/generic/env.db")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Path != "/generic/env.db" {
		t.Errorf("Database.Path = %q, want unprefixed fallback '/generic/env.db'", cfg.Database.Path)
	}
}

func TestWriteDefault(t *testing.T) {
	t.Run("creates new config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "printdock.toml")

		if err := WriteDefault(configPath); err != nil {
			t.Fatalf("WriteDefault() failed: %v", err)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("Failed to read config file: %v", err)
		}

		contentStr := string(content)
		if !strings.Contains(contentStr, "[database]") {
			t.Error("Config file missing [database] section")
		}
		if !strings.Contains(contentStr, "level = \"info\"") {
			t.Error("Config file missing default log level")
		}

		// Written defaults round-trip through Load
		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() of written defaults failed: %v", err)
		}
		if cfg.Sync.PushIntervalSeconds != 300 {
			t.Errorf("round-tripped PushIntervalSeconds = %d, want 300", cfg.Sync.PushIntervalSeconds)
		}
	})

	t.Run("does not overwrite existing file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "existing.toml")

		existingContent := "# Existing config\n[logging]\nlevel = \"debug\"\n"
		if err := os.WriteFile(configPath, []byte(existingContent), 0644); err != nil {
			t.Fatalf("Failed to create existing file: %v", err)
		}

		err := WriteDefault(configPath)
		if err == nil {
			t.Fatal("WriteDefault() should have failed for existing file")
		}
		if !strings.Contains(err.Error(), "already exists") {
			t.Errorf("Error should mention 'already exists', got: %v", err)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("Failed to read config file: %v", err)
		}
		if string(content) != existingContent {
			t.Error("Existing file was modified")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "deep", "nested", "printdock.toml")

		if err := WriteDefault(configPath); err != nil {
			t.Fatalf("WriteDefault() failed: %v", err)
		}

		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Fatal("Config file was not created in nested path")
		}
	})
}

func TestResolveConfigPath(t *testing.T) {
	t.Run("env takes priority", func(t *testing.T) {
		t.Setenv("PRINTDOCK_CONFIG", "/tmp/from_env.toml")

		got := ResolveConfigPath("/tmp/explicit.toml")
		if got != "/tmp/from_env.toml" {
			t.Fatalf("expected PRINTDOCK_CONFIG to win, got %q", got)
		}
	})

	t.Run("explicit path fallback", func(t *testing.T) {
		t.Setenv("PRINTDOCK_CONFIG", "")

		got := ResolveConfigPath("/tmp/explicit.toml")
		if got != "/tmp/explicit.toml" {
			t.Fatalf("expected explicit path, got %q", got)
		}
	})
}

func TestConfigSearchPaths(t *testing.T) {
	t.Parallel()

	paths := ConfigSearchPaths()
	if len(paths) < 2 {
		t.Fatalf("expected multiple search paths, got %d", len(paths))
	}

	last := paths[len(paths)-1]
	if filepath.Base(last) != "printdock.toml" {
		t.Errorf("last search path should be the working-directory file, got %q", last)
	}
}
