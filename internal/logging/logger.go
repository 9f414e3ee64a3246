// Package logging writes process diagnostics for the sandbox and other
// long-running commands. Operator-facing events go to the logbook.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/countersign/internal/config"
)

// Logger appends timestamped lines to a file under .countersign/logs and
// optionally mirrors them to a second writer.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
}

// New creates (or reuses) <project>/.countersign/logs/<name>.log.
func New(projectDir, name string) (*Logger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "countersign"
	}
	logDir := filepath.Join(projectDir, config.ProjectDirName, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f}, nil
}

// Mirror copies every line to w as well, typically os.Stderr.
func (l *Logger) Mirror(w io.Writer) *Logger {
	if l != nil {
		l.mu.Lock()
		l.mirror = w
		l.mu.Unlock()
	}
	return l
}

// Path returns the log file location.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	timestamp := time.Now().Format(time.RFC3339)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
	if l.mirror != nil {
		fmt.Fprintf(l.mirror, "[%s] %s\n", timestamp, line)
	}
}

// Info satisfies the dispatch logger.
func (l *Logger) Info(format string, args ...any) {
	l.Printf(format, args...)
}
