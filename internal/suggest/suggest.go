// Package suggest pre-fills the message sent with a signature request. It
// is a black box to the workflow: given what the session looks like, it
// returns a string the operator may keep or overwrite.
package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingrea/countersign/internal/signer"
	"github.com/kingrea/countersign/internal/workflow"
)

// Request carries the parts of a session a suggestion may depend on.
type Request struct {
	DocumentName        string          `json:"document_name"`
	DocumentDescription string          `json:"document_description,omitempty"`
	Signers             []signer.Signer `json:"signers"`
	FieldCount          int             `json:"field_count"`
}

// RequestFromSession builds a Request from s.
func RequestFromSession(s workflow.Session) Request {
	req := Request{
		Signers:    s.Signers.All(),
		FieldCount: s.Fields.Len(),
	}
	if s.Document != nil {
		req.DocumentName = s.Document.Name
		req.DocumentDescription = s.Document.Description
	}
	return req
}

// Suggester produces a message suggestion.
type Suggester interface {
	Suggest(ctx context.Context, req Request) (string, error)
}

// Static fills a fixed template. It never fails and needs no network.
type Static struct{}

// Suggest implements Suggester.
func (Static) Suggest(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := strings.TrimSpace(req.DocumentName)
	if name == "" {
		name = "the attached document"
	}
	greeting := "Hello"
	if len(req.Signers) == 1 {
		greeting = "Hello " + firstName(req.Signers[0].Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s,\n\nPlease review and sign %s.", greeting, name)
	if req.FieldCount > 0 {
		fmt.Fprintf(&b, " There %s %d field%s to complete.", plural(req.FieldCount, "is", "are"), req.FieldCount, plural(req.FieldCount, "", "s"))
	}
	b.WriteString(" Let me know if you have any questions.\n\nThank you.")
	return b.String(), nil
}

func firstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
