package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("server started", "addr", ":8000")

	out := buf.String()
	if !strings.Contains(out, "server started") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "addr=:8000") {
		t.Errorf("output missing attribute: %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("hello")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("output missing msg field: %q", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level entries should be filtered: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn entry should be logged: %q", out)
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept all levels.
	logger.Debug("a")
	logger.Info("b")
	logger.Error("c")
}
