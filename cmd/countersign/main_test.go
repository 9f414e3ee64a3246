package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/countersign/internal/config"
	"github.com/kingrea/countersign/internal/logbook"
)

func TestRunReturnsConfigErrors(t *testing.T) {
	project := t.TempDir()
	stateDir := filepath.Join(project, config.ProjectDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	bad := "version: 1\ndispatch:\n  mode: carrier-pigeon\n"
	if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	err := run(project, false)
	if err == nil {
		t.Fatalf("expected config error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "load config:") || !strings.Contains(err.Error(), "dispatch.mode") {
		t.Fatalf("expected wrapped dispatch.mode error, got %v", err)
	}
}

func TestCloseWithLogsFailures(t *testing.T) {
	book, err := logbook.New(filepath.Join(t.TempDir(), "journey.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	closeWith(book, "directory", func() error { return nil })
	if _, total := book.Tail(0); total != 0 {
		t.Fatalf("expected clean close to log nothing, got %d lines", total)
	}
	closeWith(book, "dispatcher", func() error { return errors.New("broken pipe") })
	lines, _ := book.Tail(1)
	if len(lines) != 1 || !strings.Contains(lines[0], "Closing dispatcher: broken pipe") {
		t.Fatalf("expected close failure in journey log, got %v", lines)
	}
}
