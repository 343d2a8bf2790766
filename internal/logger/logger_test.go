package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %s, want %s", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error for %q: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestLoggerOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelDebug)

	l.Debug("worker-1", "debug message")
	l.Info("worker-1", "info message")
	l.Warn("worker-1", "warn message")
	l.Error("worker-1", "error message")

	output := buf.String()

	for _, want := range []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]", "[worker-1]"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelWarn)

	l.Debug("", "debug message")
	l.Info("", "info message")
	l.Warn("", "warn message")
	l.Error("", "error message")

	output := buf.String()

	if strings.Contains(output, "[DEBUG]") {
		t.Error("DEBUG should be filtered")
	}
	if strings.Contains(output, "[INFO]") {
		t.Error("INFO should be filtered")
	}
	if !strings.Contains(output, "[WARN]") {
		t.Error("expected WARN log")
	}
	if !strings.Contains(output, "[ERROR]") {
		t.Error("expected ERROR log")
	}
	if l.Enabled(LevelInfo) {
		t.Error("INFO should not be enabled at WARN level")
	}
}

func TestLoggerSetLevelAndOutput(t *testing.T) {
	first := &bytes.Buffer{}
	l := New(first, LevelError)

	l.Info("", "should not appear")
	if strings.Contains(first.String(), "should not appear") {
		t.Error("INFO should be filtered at ERROR level")
	}

	second := &bytes.Buffer{}
	l.SetLevel(LevelInfo)
	l.SetOutput(second)
	l.Info("", "should appear")

	if first.Len() != 0 {
		t.Errorf("expected nothing written to the first writer, got %q", first.String())
	}
	if !strings.Contains(second.String(), "should appear") {
		t.Error("INFO should appear after SetLevel")
	}
}

func TestLoggerWithoutSource(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelInfo)

	l.Info("", "message without source")

	output := buf.String()
	if strings.Contains(output, "[]") {
		t.Error("should not have empty brackets for source")
	}
	if !strings.Contains(output, "message without source") {
		t.Error("expected message in output")
	}
}

func TestSourceLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelDebug)

	src := l.For("collector")
	if src.Name() != "collector" {
		t.Errorf("expected name collector, got %s", src.Name())
	}
	src.Info("drained %d records", 40)

	if !strings.Contains(buf.String(), "[INFO] [collector] drained 40 records") {
		t.Errorf("unexpected output %q", buf.String())
	}

	// レベル変更は固定ロガーにも反映される
	l.SetLevel(LevelError)
	src.Warn("filtered")
	if strings.Contains(buf.String(), "filtered") {
		t.Error("WARN should be filtered after SetLevel(LevelError)")
	}
}

func TestForWorker(t *testing.T) {
	if got := ForWorker(7).Name(); got != "worker-7" {
		t.Errorf("expected worker-7, got %s", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		hasError bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"xml", FormatText, true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
			continue
		}
		if err != nil || got != tt.expected {
			t.Errorf("ParseFormat(%q) = %s, %v; want %s", tt.input, got, err, tt.expected)
		}
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelInfo)
	l.SetFormat(FormatJSON)

	l.For("worker-2").Warn("job %d failed", 3)
	l.Debug("worker-2", "filtered")
	l.Info("", "no source")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", lines[0], err)
	}
	if entry["level"] != "WARN" || entry["msg"] != "job 3 failed" || entry["source"] != "worker-2" {
		t.Errorf("unexpected entry %v", entry)
	}

	var plain map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &plain); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", lines[1], err)
	}
	if _, ok := plain["source"]; ok || plain["msg"] != "no source" {
		t.Errorf("expected a message without source, got %v", plain)
	}

	// text に戻すと行形式になる
	buf.Reset()
	l.SetFormat(FormatText)
	l.Info("api", "back to text")
	if !strings.Contains(buf.String(), "[INFO] [api] back to text") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLoggerSetOutputKeepsJSON(t *testing.T) {
	l := New(&bytes.Buffer{}, LevelInfo)
	l.SetFormat(FormatJSON)

	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	l.Info("", "hello")

	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON on the new writer, got %q", buf.String())
	}
}
