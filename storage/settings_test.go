package storage

import (
	"path/filepath"
	"testing"
)

func TestSettingsStore_SetAndGet(t *testing.T) {
	settings, err := NewSettingsStore("")
	if err != nil {
		t.Fatalf("Failed to create settings store: %v", err)
	}
	defer settings.Close()

	// String value
	if err := settings.SetValue("greeting", "hello"); err != nil {
		t.Fatalf("Failed to set string value: %v", err)
	}
	var s string
	if err := settings.GetValue("greeting", &s); err != nil {
		t.Fatalf("Failed to get string value: %v", err)
	}
	if s != "hello" {
		t.Errorf("Expected hello, got %s", s)
	}

	// Structured value
	info := map[string]interface{}{"count": 3.0, "enabled": true}
	if err := settings.SetValue("info", info); err != nil {
		t.Fatalf("Failed to set structured value: %v", err)
	}
	var got map[string]interface{}
	if err := settings.GetValue("info", &got); err != nil {
		t.Fatalf("Failed to get structured value: %v", err)
	}
	if got["count"] != 3.0 || got["enabled"] != true {
		t.Errorf("Structured value did not round-trip: %v", got)
	}

	// Overwrite
	if err := settings.SetValue("greeting", "goodbye"); err != nil {
		t.Fatalf("Failed to overwrite value: %v", err)
	}
	if err := settings.GetValue("greeting", &s); err != nil {
		t.Fatalf("Failed to get overwritten value: %v", err)
	}
	if s != "goodbye" {
		t.Errorf("Expected goodbye, got %s", s)
	}
}

func TestSettingsStore_AbsentKey(t *testing.T) {
	settings, err := NewSettingsStore("")
	if err != nil {
		t.Fatalf("Failed to create settings store: %v", err)
	}
	defer settings.Close()

	// Absent keys leave dest untouched and return no error
	value := "unchanged"
	if err := settings.GetValue("missing", &value); err != nil {
		t.Fatalf("Expected no error for absent key, got %v", err)
	}
	if value != "unchanged" {
		t.Errorf("Dest was modified for absent key: %s", value)
	}
}

func TestSettingsStore_Delete(t *testing.T) {
	settings, err := NewSettingsStore("")
	if err != nil {
		t.Fatalf("Failed to create settings store: %v", err)
	}
	defer settings.Close()

	if err := settings.SetValue(SettingRemoteAccount, "fp-123"); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if err := settings.DeleteValue(SettingRemoteAccount); err != nil {
		t.Fatalf("Failed to delete value: %v", err)
	}

	value := ""
	if err := settings.GetValue(SettingRemoteAccount, &value); err != nil {
		t.Fatalf("Failed to get deleted value: %v", err)
	}
	if value != "" {
		t.Errorf("Expected deleted key to be absent, got %s", value)
	}

	// Deleting a key twice is fine
	if err := settings.DeleteValue(SettingRemoteAccount); err != nil {
		t.Errorf("Second delete failed: %v", err)
	}
}

func TestSettingsStore_FilePersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settings.db")

	settings, err := NewSettingsStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create settings store: %v", err)
	}
	if err := settings.SetValue(SettingRemoteAccount, "fp-account-1"); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}
	if err := settings.Close(); err != nil {
		t.Fatalf("Failed to close settings store: %v", err)
	}

	reopened, err := NewSettingsStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen settings store: %v", err)
	}
	defer reopened.Close()

	var fingerprint string
	if err := reopened.GetValue(SettingRemoteAccount, &fingerprint); err != nil {
		t.Fatalf("Failed to get value after reopen: %v", err)
	}
	if fingerprint != "fp-account-1" {
		t.Errorf("Expected fp-account-1, got %s", fingerprint)
	}
}
