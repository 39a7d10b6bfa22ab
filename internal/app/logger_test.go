package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/heartmarshall/docflow-backend/internal/config"
)

func TestNewLogger_JSONCarriesServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "info", Format: "JSON"})

	logger.Info("document stored", slog.String("document_id", "d-1"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json output expected: %v (%q)", err, buf.String())
	}
	if m["app"] != serviceName {
		t.Errorf("app = %v, want %q", m["app"], serviceName)
	}
	if m["version"] != Version {
		t.Errorf("version = %v, want %q", m["version"], Version)
	}
	if m["document_id"] != "d-1" {
		t.Errorf("document_id = %v", m["document_id"])
	}
	if _, ok := m["source"]; ok {
		t.Error("json format should not include source")
	}
}

func TestNewLogger_TextIncludesSource(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "debug", Format: "text"})

	logger.Debug("stage started")

	out := buf.String()
	if !strings.Contains(out, "source=") {
		t.Errorf("text format should include source, got %q", out)
	}
	if !strings.Contains(out, "app="+serviceName) {
		t.Errorf("missing app attr in %q", out)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level      string
		enabled    slog.Level
		suppressed slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"WARN", slog.LevelWarn, slog.LevelInfo},
		{"warning", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"", slog.LevelInfo, slog.LevelDebug},
		{"verbose", slog.LevelInfo, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(&bytes.Buffer{}, config.LogConfig{Level: tt.level, Format: "json"})
			h := logger.Handler()
			if !h.Enabled(t.Context(), tt.enabled) {
				t.Errorf("level %v should be enabled for %q", tt.enabled, tt.level)
			}
			if h.Enabled(t.Context(), tt.suppressed) {
				t.Errorf("level %v should be suppressed for %q", tt.suppressed, tt.level)
			}
		})
	}
}

func TestNewLogger_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(config.LogConfig{Level: "error", Format: "json"})
	if slog.Default().Handler() != logger.Handler() {
		t.Error("NewLogger should install itself as the slog default")
	}
}
