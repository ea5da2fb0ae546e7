package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestSetupWriter(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	var buf bytes.Buffer
	SetupWriter(&buf, "DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	Debug("lease renewed", "job", "price-job")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["msg"] != "lease renewed" {
		t.Errorf("Expected msg 'lease renewed', got %v", out["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "text")
	l.Info("hello", "job", "trade-job")

	line := buf.String()
	if !strings.Contains(line, "msg=hello") || !strings.Contains(line, "job=trade-job") {
		t.Fatalf("unexpected text output: %q", line)
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("test-comp").Info("hello")

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

func TestWithJob(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithJob("publisher-job").Info("job msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["job"] != "publisher-job" {
		t.Errorf("Expected job 'publisher-job', got %v", out["job"])
	}
}

func TestWithOwner(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithOwner("host-a-1234").Info("owner msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["owner"] != "host-a-1234" {
		t.Errorf("Expected owner 'host-a-1234', got %v", out["owner"])
	}
}
