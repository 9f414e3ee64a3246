package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journey.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendFoldsMessagesAndParses(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	book, err := New(filepath.Join(t.TempDir(), "logs", "journey.log"), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Warn("dispatch failed:\n  %s", "502 simulated failure")
	book.Error("bad")
	entries := book.Entries(10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarn || entries[0].Message != "dispatch failed: 502 simulated failure" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if !entries[0].Time.Equal(fixed) {
		t.Fatalf("expected fixed timestamp, got %s", entries[0].Time)
	}
	if entries[1].Level != LevelError || entries[1].Message != "bad" {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}

func TestNilAndMissingLogbook(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("expected nothing from nil logbook")
	}
	fresh, err := New(filepath.Join(t.TempDir(), "journey.log"))
	if err != nil {
		t.Fatal(err)
	}
	if lines, total := fresh.Tail(5); len(lines) != 0 || total != 0 {
		t.Fatalf("expected empty tail before first write")
	}
	fresh.Info("one")
	if lines, total := fresh.Tail(0); len(lines) != 0 || total != 1 {
		t.Fatalf("expected count without lines, got %d lines total %d", len(lines), total)
	}
}

func TestParseLineRejectsGarbage(t *testing.T) {
	if _, ok := ParseLine("not a log line"); ok {
		t.Fatalf("expected garbage to be rejected")
	}
}
