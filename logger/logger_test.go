package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 100)
	defer logger.Close()

	logger.Error("error message")
	logger.Warn("warn message")
	logger.Info("info message")
	logger.Debug("debug message") // Should not appear
	logger.Trace("trace message") // Should not appear

	buffer := logger.GetBuffer()

	if len(buffer) != 3 {
		t.Errorf("expected 3 log entries, got %d", len(buffer))
	}

	if buffer[0].Level != ERROR || buffer[0].Message != "error message" {
		t.Errorf("first entry should be ERROR, got %v", buffer[0])
	}
	if buffer[1].Level != WARN || buffer[1].Message != "warn message" {
		t.Errorf("second entry should be WARN, got %v", buffer[1])
	}
	if buffer[2].Level != INFO || buffer[2].Message != "info message" {
		t.Errorf("third entry should be INFO, got %v", buffer[2])
	}
}

func TestLoggerFields(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 100)
	defer logger.Close()

	logger.Info("test message", "key1", "value1", "key2", 42)

	buffer := logger.GetBuffer()
	if len(buffer) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(buffer))
	}

	entry := buffer[0]
	if len(entry.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(entry.Fields))
	}
	if entry.Fields[0].Key != "key1" || entry.Fields[0].Value != "value1" {
		t.Errorf("expected field key1=value1, got %v", entry.Fields[0])
	}
	if entry.Fields[1].Key != "key2" || entry.Fields[1].Value != 42 {
		t.Errorf("expected field key2=42, got %v", entry.Fields[1])
	}
}

func TestLoggerSetLevel(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 100)
	defer logger.Close()

	logger.Debug("debug1") // Should not appear

	logger.SetLevel(DEBUG)
	logger.Debug("debug2") // Should appear

	buffer := logger.GetBuffer()
	if len(buffer) != 1 {
		t.Errorf("expected 1 log entry, got %d", len(buffer))
	}
	if buffer[0].Message != "debug2" {
		t.Errorf("expected 'debug2', got %s", buffer[0].Message)
	}
}

func TestLoggerCircularBuffer(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 5) // Small buffer size
	defer logger.Close()

	for i := 0; i < 10; i++ {
		logger.Info("message", "num", i)
	}

	buffer := logger.GetBuffer()
	if len(buffer) != 5 {
		t.Errorf("expected buffer size 5, got %d", len(buffer))
	}

	// Should have messages 5-9 (oldest dropped)
	if buffer[0].Fields[0].Value != 5 {
		t.Errorf("expected oldest entry to be num=5, got %v", buffer[0].Fields[0].Value)
	}
	if buffer[4].Fields[0].Value != 9 {
		t.Errorf("expected newest entry to be num=9, got %v", buffer[4].Fields[0].Value)
	}
}

func TestLoggerFileOutput(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 100)

	logger.Info("test message", "key", "value")
	logger.Close()

	content, err := os.ReadFile(filepath.Join(tmpDir, "printdock.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "[INFO]") {
		t.Errorf("log file should contain [INFO], got: %s", contentStr)
	}
	if !strings.Contains(contentStr, "test message") {
		t.Errorf("log file should contain 'test message', got: %s", contentStr)
	}
	if !strings.Contains(contentStr, "key=value") {
		t.Errorf("log file should contain 'key=value', got: %s", contentStr)
	}
}

func TestLoggerRateLimiting(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(WARN, tmpDir, 100)
	defer logger.Close()

	for i := 0; i < 10; i++ {
		logger.WarnRateLimited("test-key", 1*time.Second, "rate limited message", "count", i)
		time.Sleep(50 * time.Millisecond)
	}

	buffer := logger.GetBuffer()
	if len(buffer) != 1 {
		t.Errorf("expected 1 log entry due to rate limiting, got %d", len(buffer))
	}

	time.Sleep(1 * time.Second)

	logger.WarnRateLimited("test-key", 1*time.Second, "rate limited message", "count", 10)

	buffer = logger.GetBuffer()
	if len(buffer) != 2 {
		t.Errorf("expected 2 log entries after rate limit expired, got %d", len(buffer))
	}
}

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"ERROR", ERROR},
		{"WARN", WARN},
		{"INFO", INFO},
		{"DEBUG", DEBUG},
		{"TRACE", TRACE},
		{"error", ERROR}, // config files use lowercase
		{"debug", DEBUG},
		{"invalid", INFO}, // Default
	}

	for _, tt := range tests {
		result := LevelFromString(tt.input)
		if result != tt.expected {
			t.Errorf("LevelFromString(%q) = %v, expected %v", tt.input, result, tt.expected)
		}
	}
}

func TestLevelToString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    LogLevel
		expected string
	}{
		{ERROR, "ERROR"},
		{WARN, "WARN"},
		{INFO, "INFO"},
		{DEBUG, "DEBUG"},
		{TRACE, "TRACE"},
	}

	for _, tt := range tests {
		result := LevelToString(tt.input)
		if result != tt.expected {
			t.Errorf("LevelToString(%v) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestLoggerRotation(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 100)
	logger.SetRotationPolicy(RotationPolicy{
		Enabled:    true,
		MaxSizeMB:  50,
		MaxAgeDays: 1,
		MaxFiles:   3,
	})

	logger.Info("first message")
	logger.ForceRotate()
	logger.Info("second message")
	logger.Close()

	rotated, err := filepath.Glob(filepath.Join(tmpDir, "printdock_*.log"))
	if err != nil {
		t.Fatalf("failed to list log files: %v", err)
	}
	if len(rotated) != 1 {
		t.Errorf("expected 1 rotated log file, got %d: %v", len(rotated), rotated)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "printdock.log")); err != nil {
		t.Errorf("expected fresh log file after rotation: %v", err)
	}
}

func TestLoggerConcurrency(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 1000)
	defer logger.Close()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				logger.Info("concurrent message", "goroutine", id, "iteration", j)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	buffer := logger.GetBuffer()
	if len(buffer) != 1000 {
		t.Errorf("expected 1000 entries in buffer, got %d", len(buffer))
	}
}

func TestLoggerCopy(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(INFO, tmpDir, 100)
	defer logger.Close()

	logger.Info("first")
	logger.Warn("second")

	var sb strings.Builder
	if err := logger.Copy(&sb); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "first") || !strings.Contains(lines[1], "second") {
		t.Errorf("copied lines out of order: %v", lines)
	}
}

func TestFormatLogEntry(t *testing.T) {
	t.Parallel()

	entry := LogEntry{
		Timestamp: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC),
		Level:     INFO,
		Message:   "test message",
		Fields: []Field{
			{Key: "key1", Value: "value1"},
			{Key: "key2", Value: 42},
		},
	}

	formatted := formatLogEntry(entry)

	// Fields are ordered, so the whole line is deterministic
	expected := "2025-11-01T12:00:00+00:00 [INFO] test message key1=value1 key2=42"
	if formatted != expected {
		t.Errorf("formatLogEntry = %q, expected %q", formatted, expected)
	}
}
