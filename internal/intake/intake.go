// Package intake turns an uploaded file into workflow document metadata.
// The bytes stay where they are; the session only keeps a reference.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/countersign/internal/workflow"
)

var (
	// ErrEmptyFile is returned for zero-length uploads.
	ErrEmptyFile = errors.New("intake: file is empty")
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("intake: file exceeds size limit")
)

// DefaultMaxBytes caps uploads at 25 MB.
const DefaultMaxBytes = int64(25 << 20)

// Logger is the subset of the logbook intake writes to.
type Logger interface {
	Warn(format string, args ...any)
}

// Intake builds documents from files.
type Intake struct {
	inspector Inspector
	newHandle func() string
	maxBytes  int64
	logger    Logger
}

// Option customizes an Intake.
type Option func(*Intake)

// WithInspector replaces the PDF inspector.
func WithInspector(i Inspector) Option {
	return func(in *Intake) {
		in.inspector = i
	}
}

// WithHandleGenerator replaces the preview handle generator.
func WithHandleGenerator(fn func() string) Option {
	return func(in *Intake) {
		if fn != nil {
			in.newHandle = fn
		}
	}
}

// WithMaxBytes overrides the upload size limit.
func WithMaxBytes(n int64) Option {
	return func(in *Intake) {
		if n > 0 {
			in.maxBytes = n
		}
	}
}

// WithLogger reports inspection problems.
func WithLogger(l Logger) Option {
	return func(in *Intake) {
		in.logger = l
	}
}

// New returns an Intake that inspects PDFs with pdfkit.
func New(opts ...Option) *Intake {
	in := &Intake{
		inspector: NewPDFInspector(),
		newHandle: func() string { return "preview_" + uuid.NewString() },
		maxBytes:  DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// FromFile reads path and describes it. The file reference is the
// absolute path.
func (in *Intake) FromFile(ctx context.Context, path string) (workflow.Document, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return workflow.Document{}, fmt.Errorf("intake: path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return workflow.Document{}, fmt.Errorf("intake: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return workflow.Document{}, fmt.Errorf("intake: stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return workflow.Document{}, fmt.Errorf("intake: %s is a directory", abs)
	}
	if info.Size() > in.maxBytes {
		return workflow.Document{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return workflow.Document{}, fmt.Errorf("intake: read %s: %w", abs, err)
	}
	return in.describe(ctx, "file://"+filepath.ToSlash(abs), filepath.Base(abs), data)
}

// FromBytes describes an in-memory upload named name. ref identifies where
// the bytes were stored by the caller.
func (in *Intake) FromBytes(ctx context.Context, ref, name string, data []byte) (workflow.Document, error) {
	if strings.TrimSpace(ref) == "" {
		return workflow.Document{}, fmt.Errorf("intake: file reference is required")
	}
	if int64(len(data)) > in.maxBytes {
		return workflow.Document{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return in.describe(ctx, ref, name, data)
}

func (in *Intake) describe(ctx context.Context, ref, name string, data []byte) (workflow.Document, error) {
	if len(data) == 0 {
		return workflow.Document{}, ErrEmptyFile
	}
	if err := ctx.Err(); err != nil {
		return workflow.Document{}, err
	}
	doc := workflow.Document{
		Name:          displayName(name),
		FileRef:       ref,
		PreviewHandle: in.newHandle(),
		ContentType:   detectContentType(name, data),
		SizeBytes:     int64(len(data)),
	}
	if doc.ContentType == "application/pdf" && in.inspector != nil {
		info, err := in.inspector.Inspect(ctx, bytes.NewReader(data))
		if err != nil {
			if in.logger != nil {
				in.logger.Warn("intake: could not inspect %s: %v", name, err)
			}
			return doc, nil
		}
		doc.PageCount = info.Pages
		if title := strings.TrimSpace(info.Title); title != "" {
			doc.Description = title
		}
	}
	return doc, nil
}

// displayName strips the directory and extension from a file name.
func displayName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	trimmed := strings.TrimSuffix(base, filepath.Ext(base))
	if trimmed == "" {
		return base
	}
	return trimmed
}

func detectContentType(name string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "application/octet-stream") && strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "application/pdf"
	}
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}
