package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLoggerWritesAndMirrors(t *testing.T) {
	var mirror bytes.Buffer
	logger, err := New(t.TempDir(), "sandbox")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Mirror(&mirror)
	logger.Printf("listening on %s\n", "127.0.0.1:8787")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.HasSuffix(logger.Path(), "sandbox.log") {
		t.Fatalf("unexpected path %s", logger.Path())
	}
	if !strings.Contains(string(data), "listening on 127.0.0.1:8787\n") {
		t.Fatalf("expected line in file, got %q", data)
	}
	if strings.Count(string(data), "\n") != 1 {
		t.Fatalf("expected trailing newline to be trimmed")
	}
	if !strings.Contains(mirror.String(), "listening on") {
		t.Fatalf("expected mirrored line")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
