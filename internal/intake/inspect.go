package intake

import (
	"context"
	"fmt"
	"io"

	"github.com/wudi/pdfkit/ir"
)

// Info is what an inspector learns about a document.
type Info struct {
	Pages int
	Title string
}

// Inspector reads document structure.
type Inspector interface {
	Inspect(ctx context.Context, r io.ReaderAt) (Info, error)
}

// InspectorFunc adapts a function to Inspector.
type InspectorFunc func(ctx context.Context, r io.ReaderAt) (Info, error)

// Inspect implements Inspector.
func (f InspectorFunc) Inspect(ctx context.Context, r io.ReaderAt) (Info, error) {
	return f(ctx, r)
}

// PDFInspector parses PDFs with the pdfkit pipeline.
type PDFInspector struct {
	pipeline *ir.Pipeline
}

// NewPDFInspector returns an inspector using the default pipeline.
func NewPDFInspector() *PDFInspector {
	return &PDFInspector{pipeline: ir.NewDefault()}
}

// Inspect implements Inspector.
func (p *PDFInspector) Inspect(ctx context.Context, r io.ReaderAt) (Info, error) {
	doc, err := p.pipeline.Parse(ctx, r)
	if err != nil {
		return Info{}, fmt.Errorf("intake: parse pdf: %w", err)
	}
	info := Info{Pages: len(doc.Pages)}
	if doc.Info != nil {
		info.Title = doc.Info.Title
	}
	return info, nil
}
