package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/signer"
)

// ErrIncomplete is returned when a session cannot produce an envelope yet.
var ErrIncomplete = errors.New("workflow: request is incomplete")

// Envelope is the finalized payload handed to the dispatch collaborator.
type Envelope struct {
	SessionID string          `json:"session_id"`
	Document  Document        `json:"document"`
	Signers   []signer.Signer `json:"signers"`
	Fields    []field.Field   `json:"fields"`
	Message   string          `json:"message,omitempty"`
}

// Envelope snapshots the session for dispatch.
func (s Session) Envelope() (Envelope, error) {
	if !s.CanProceedFromFields() {
		return Envelope{}, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(s.Blockers(), "; "))
	}
	return Envelope{
		SessionID: s.ID,
		Document:  *s.Document.clone(),
		Signers:   s.Signers.All(),
		Fields:    s.Fields.All(),
		Message:   strings.TrimSpace(s.Message),
	}, nil
}

// Validate checks the relational invariants of an envelope received from
// elsewhere: unique signer emails, every field bound to a known signer
// with a valid type and page, every signer owning at least one field.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Document.Name) == "" {
		return fmt.Errorf("workflow: envelope document name is required")
	}
	if strings.TrimSpace(e.Document.FileRef) == "" {
		return fmt.Errorf("workflow: envelope document file_ref is required")
	}
	if len(e.Signers) == 0 {
		return fmt.Errorf("workflow: envelope has no signers")
	}
	owned := make(map[string]int, len(e.Signers))
	for i, sg := range e.Signers {
		if strings.TrimSpace(sg.Email) == "" || strings.TrimSpace(sg.Name) == "" {
			return fmt.Errorf("workflow: signer %d is missing name or email", i)
		}
		if _, dup := owned[sg.Email]; dup {
			return fmt.Errorf("workflow: duplicate signer %q", sg.Email)
		}
		owned[sg.Email] = 0
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("workflow: envelope has no fields")
	}
	for i, f := range e.Fields {
		if _, ok := owned[f.Signer]; !ok {
			return fmt.Errorf("workflow: field %d references unknown signer %q", i, f.Signer)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("workflow: field %d has unknown type %q", i, f.Type)
		}
		if !e.Document.HasPage(f.Page) {
			return fmt.Errorf("workflow: field %d is on page %d outside the document", i, f.Page)
		}
		owned[f.Signer]++
	}
	for _, sg := range e.Signers {
		if owned[sg.Email] == 0 {
			return fmt.Errorf("workflow: signer %q has no fields", sg.Email)
		}
	}
	return nil
}
