// Package logbook keeps the operator-facing journey log: one line per
// notable session event, shown in the TUI log panel.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is a parsed log line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Logbook persists session progress to a simple text file.
type Logbook struct {
	path  string
	clock func() time.Time
	mu    sync.Mutex
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New creates a logbook that writes to the provided path.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	l := &Logbook{path: path, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. Multi-line messages are folded onto one line.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	message = strings.Join(strings.Fields(message), " ")
	line := fmt.Sprintf("%s %-5s %s\n",
		l.clock().UTC().Format(time.RFC3339),
		string(level),
		message,
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries and the total
// number of lines in the log.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		total++
		if maxLines <= 0 {
			continue
		}
		lines = append(lines, scanner.Text())
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	return lines, total
}

// Entries parses the most recent maxLines lines. Lines that do not match
// the logbook format are skipped.
func (l *Logbook) Entries(maxLines int) []Entry {
	lines, _ := l.Tail(maxLines)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if entry, ok := ParseLine(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// ParseLine splits a logbook line into its parts.
func ParseLine(line string) (Entry, bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return Entry{}, false
	}
	rest := strings.TrimLeft(parts[1]+" "+parts[2], " ")
	level, message, _ := strings.Cut(rest, " ")
	return Entry{Time: ts, Level: Level(level), Message: strings.TrimSpace(message)}, true
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
