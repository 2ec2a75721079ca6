package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nhle/autohub/internal/model"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "autohub.log")

	log, err := New(model.LogConfig{Path: path, Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hub connected")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hub connected") {
		t.Errorf("Expected log file to contain message, got %q", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(model.LogConfig{Path: filepath.Join(t.TempDir(), "a.log"), Level: "loud"})
	if err == nil {
		t.Error("Expected error for unknown level")
	}
}
