package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"info", LevelInfo},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConsoleLogger_LevelFilterAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleWriter(&buf, LevelInfo, false)

	l.Debug("hidden")
	l.WithFields(String("run", "r1")).Info("runner.started", Int("lines", 2), String("path", "a b"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[INFO ] runner.started run=r1 lines=2 path=\"a b\"") {
		t.Errorf("unexpected console output %q", out)
	}
}

func TestStructuredLogger_WritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "autorun.ndjson")
	l, err := NewStructured(path, LevelDebug)
	if err != nil {
		t.Fatalf("NewStructured: %v", err)
	}
	l.WithFields(String("component", "runner")).Warn("runner.interrupted", Err(errors.New("boom")))
	l.Close()
	// Writes after Close are dropped rather than panicking.
	l.Info("after.close")

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(lines))
	}
	e := lines[0]
	if e["msg"] != "runner.interrupted" || e["level"] != "WARN" || e["component"] != "runner" || e["error"] != "boom" {
		t.Errorf("unexpected entry %v", e)
	}
}

func TestFileLogger_WritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFile(FileConfig{Dir: dir, Prefix: "test", Level: LevelInfo})
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	l.Info("preflight.ready", Bool("created", true))
	l.Close()

	files := l.LogFiles()
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %v", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "preflight.ready created=true") {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestFileLogger_CleansOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "test-2001-01-01.log")
	if err := os.WriteFile(old, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := NewFile(FileConfig{Dir: dir, Prefix: "test", Level: LevelInfo, MaxAgeDays: 7})
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer l.Close()
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("expected old log removed, stat err = %v", err)
	}
}

func TestMulti_DispatchesToAll(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi(NewConsoleWriter(&a, LevelInfo, false), NewConsoleWriter(&b, LevelInfo, false))
	m.Error("x.failed")
	if !strings.Contains(a.String(), "x.failed") || !strings.Contains(b.String(), "x.failed") {
		t.Errorf("expected both loggers to receive entry: %q / %q", a.String(), b.String())
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
