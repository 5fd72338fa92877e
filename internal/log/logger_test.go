package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup(t *testing.T) {
	// Reset logger for testing
	logger = nil
	t.Cleanup(func() { logger = nil })

	var first, second bytes.Buffer
	if l := Setup(&first, "DEBUG", "json"); l == nil {
		t.Fatal("Logger should not be nil")
	}
	Get().Debug("debug line")
	if !strings.Contains(first.String(), `"msg":"debug line"`) {
		t.Errorf("expected debug record in output, got %q", first.String())
	}

	// A second Setup replaces the writer, level and format.
	Setup(&second, "warn", "text")
	WithComponent("dispatch").Info("dropped")
	WithComponent("dispatch").Warn("kept")
	if strings.Contains(second.String(), "dropped") {
		t.Errorf("expected info record to be filtered, got %q", second.String())
	}
	if !strings.Contains(second.String(), "component=dispatch") || !strings.Contains(second.String(), "msg=kept") {
		t.Errorf("expected warn record from the new logger, got %q", second.String())
	}
	if strings.Contains(first.String(), "kept") {
		t.Errorf("old writer still receives records: %q", first.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "text")
	l.Warn("task limit reached", "event", "WindowFocusChanged")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected text handler output, got %q", out)
	}
	if !strings.Contains(out, "event=WindowFocusChanged") {
		t.Errorf("expected event attribute, got %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("expected a single line, got %q", out)
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, nil)
	l := slog.New(h)

	// Inject this logger as the global logger for the test
	logger = l
	t.Cleanup(func() { logger = nil })

	l2 := WithComponent("test-comp")
	l2.Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["component"] != "test-comp" {
		t.Errorf("Expected component 'test-comp', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}
