package workflow

import (
	"fmt"

	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/signer"
)

// Session is the whole state of one signature request being prepared.
// It is a value; Reduce returns a new Session instead of mutating one.
type Session struct {
	ID       string          `json:"id"`
	Document *Document       `json:"document,omitempty"`
	Signers  signer.Registry `json:"signers"`
	Fields   field.Registry  `json:"fields"`
	Step     Step            `json:"step"`
	Message  string          `json:"message,omitempty"`

	// Transient flags, never persisted.
	IsProcessing bool   `json:"-"`
	LastError    string `json:"-"`
}

// NewSession returns the initial state: no document, empty registries, UPLOAD.
func NewSession(id string) Session {
	return Session{ID: id, Step: StepUpload}
}

// CanProceedFromUpload holds once a document is attached.
func (s Session) CanProceedFromUpload() bool {
	return s.Document != nil
}

// CanProceedFromSigners holds when there is at least one signer and a document.
func (s Session) CanProceedFromSigners() bool {
	return s.CanProceedFromUpload() && s.Signers.Len() > 0
}

// CanProceedFromFields holds when every signer owns at least one field.
func (s Session) CanProceedFromFields() bool {
	if !s.CanProceedFromSigners() || s.Fields.Len() == 0 {
		return false
	}
	return len(s.UnassignedSigners()) == 0
}

// CanSend holds when the request is complete, on REVIEW, and not already sending.
func (s Session) CanSend() bool {
	return s.CanProceedFromFields() && s.Step == StepReview && !s.IsProcessing
}

// CanEnter reports whether the session may sit on target. SENT is only
// reachable through a successful dispatch.
func (s Session) CanEnter(target Step) bool {
	switch target {
	case StepUpload:
		return true
	case StepSigners:
		return s.CanProceedFromUpload()
	case StepFields:
		return s.CanProceedFromSigners()
	case StepReview:
		return s.CanProceedFromFields()
	default:
		return false
	}
}

// UnassignedSigners lists signers that own no field.
func (s Session) UnassignedSigners() []signer.Signer {
	counts := s.Fields.CountBySigner()
	var out []signer.Signer
	for _, sg := range s.Signers.All() {
		if counts[sg.Email] == 0 {
			out = append(out, sg)
		}
	}
	return out
}

// Blockers explains, in order, why the session cannot move past its
// current step toward sending. Empty means nothing blocks.
func (s Session) Blockers() []string {
	var out []string
	if s.Document == nil {
		out = append(out, "Attach a document to continue")
	}
	if s.Signers.Len() == 0 {
		out = append(out, "Add at least one signer")
	}
	if s.Signers.Len() > 0 && s.Fields.Len() == 0 {
		out = append(out, "Place at least one field")
	}
	for _, sg := range s.UnassignedSigners() {
		if s.Fields.Len() == 0 {
			break
		}
		out = append(out, fmt.Sprintf("%s has no fields", sg.Name))
	}
	return out
}

// Normalize repairs a session that was not produced by Reduce, such as a
// restored draft. Processing never survives a restore, and the step is
// settled like after any edit. A SENT session that could not have been
// sent goes back to the furthest step it could have reached.
func Normalize(s Session) Session {
	s.IsProcessing = false
	if s.Step == StepSent && !s.CanProceedFromFields() {
		s.Step = StepReview
	}
	return s.settle()
}

// settle pulls the step back to the furthest step whose guard still holds.
// A registry edit made on REVIEW can invalidate REVIEW; the session must
// never sit on a step it could not have entered.
func (s Session) settle() Session {
	if s.Step.IsTerminal() {
		return s
	}
	for s.Step > StepUpload && !s.CanEnter(s.Step) {
		s.Step = s.Step.Previous()
	}
	return s
}
