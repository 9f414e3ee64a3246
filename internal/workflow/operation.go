package workflow

import (
	"strings"

	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/signer"
)

// Operation is one state transition. Operations are plain values; the only
// way to run one is Reduce or Apply.
type Operation interface {
	apply(Session) (Session, bool)
}

// dispatchControl marks operations driven by the dispatch lifecycle rather
// than by the operator.
type dispatchControl interface {
	Operation
	dispatchControl()
}

// IsDispatchControl reports whether op belongs to the dispatch lifecycle
// (BeginDispatch, CompleteDispatch, FailDispatch).
func IsDispatchControl(op Operation) bool {
	_, ok := op.(dispatchControl)
	return ok
}

// Reduce applies op to s and returns the resulting session.
func Reduce(s Session, op Operation) Session {
	next, _ := Apply(s, op)
	return next
}

// Apply is Reduce that also reports whether anything changed. Refused
// operations return s unchanged and false.
//
// While a dispatch is outstanding only dispatch-control operations run.
// Any operator action clears LastError.
func Apply(s Session, op Operation) (Session, bool) {
	if op == nil {
		return s, false
	}
	control := IsDispatchControl(op)
	if s.IsProcessing && !control {
		return s, false
	}
	cleared := false
	if !control && s.LastError != "" {
		s.LastError = ""
		cleared = true
	}
	next, ok := op.apply(s)
	if !ok {
		return s, cleared
	}
	return next.settle(), true
}

// AttachDocument sets the document. Attaching a different file discards
// every placed field; re-attaching the same file only refreshes metadata.
type AttachDocument struct {
	Document Document
}

func (op AttachDocument) apply(s Session) (Session, bool) {
	doc := op.Document
	doc.Name = strings.TrimSpace(doc.Name)
	if strings.TrimSpace(doc.FileRef) == "" {
		return s, false
	}
	if doc.Name == "" {
		doc.Name = "Untitled document"
	}
	if !s.Document.SameFile(&doc) {
		s.Fields = field.Registry{}
	}
	s.Document = &doc
	return s, true
}

// RenameDocument changes the document name. Blank names are refused.
type RenameDocument struct {
	Name string
}

func (op RenameDocument) apply(s Session) (Session, bool) {
	name := strings.TrimSpace(op.Name)
	if s.Document == nil || name == "" {
		return s, false
	}
	doc := s.Document.clone()
	doc.Name = name
	s.Document = doc
	return s, true
}

// DescribeDocument changes the optional description.
type DescribeDocument struct {
	Description string
}

func (op DescribeDocument) apply(s Session) (Session, bool) {
	if s.Document == nil {
		return s, false
	}
	doc := s.Document.clone()
	doc.Description = strings.TrimSpace(op.Description)
	s.Document = doc
	return s, true
}

// ClearDocument removes the document and every placed field. Signers stay.
type ClearDocument struct{}

func (ClearDocument) apply(s Session) (Session, bool) {
	if s.Document == nil {
		return s, false
	}
	s.Document = nil
	s.Fields = field.Registry{}
	return s, true
}

// AddSigner appends a signer. Incomplete candidates and emails already on
// the request are refused.
type AddSigner struct {
	Candidate signer.Candidate
}

func (op AddSigner) apply(s Session) (Session, bool) {
	if !op.Candidate.Complete() || s.Signers.Contains(strings.TrimSpace(op.Candidate.Email)) {
		return s, false
	}
	next, ok := s.Signers.Add(op.Candidate)
	if !ok {
		return s, false
	}
	s.Signers = next
	return s, true
}

// ToggleSigner adds the candidate, or removes the signer with the same
// email (and that signer's fields) if it is already present.
type ToggleSigner struct {
	Candidate signer.Candidate
}

func (op ToggleSigner) apply(s Session) (Session, bool) {
	if idx := s.Signers.IndexOf(strings.TrimSpace(op.Candidate.Email)); idx >= 0 {
		return RemoveSigner{Index: idx}.apply(s)
	}
	return AddSigner{Candidate: op.Candidate}.apply(s)
}

// UpdateSigner patches the signer at Index. An email change re-points the
// signer's fields and is refused if another signer already uses the email.
type UpdateSigner struct {
	Index int
	Patch signer.Patch
}

func (op UpdateSigner) apply(s Session) (Session, bool) {
	current, ok := s.Signers.At(op.Index)
	if !ok {
		return s, false
	}
	if op.Patch.Email != nil {
		email := strings.TrimSpace(*op.Patch.Email)
		if other := s.Signers.IndexOf(email); other >= 0 && other != op.Index {
			return s, false
		}
	}
	next, ok := s.Signers.Update(op.Index, op.Patch)
	if !ok {
		return s, false
	}
	updated, _ := next.At(op.Index)
	s.Signers = next
	s.Fields = s.Fields.Rebind(current.Email, updated.Email)
	return s, true
}

// RemoveSigner drops the signer at Index together with every field bound
// to that signer.
type RemoveSigner struct {
	Index int
}

func (op RemoveSigner) apply(s Session) (Session, bool) {
	current, ok := s.Signers.At(op.Index)
	if !ok {
		return s, false
	}
	next, _ := s.Signers.Remove(op.Index)
	s.Signers = next
	s.Fields, _ = s.Fields.RemoveBySigner(current.Email)
	return s, true
}

// PlaceField adds a field at an already-normalized position. The signer
// must be on the request and the page must exist in the document.
type PlaceField struct {
	Signer string
	Type   field.Type
	Page   int
	X      float64
	Y      float64
}

func (op PlaceField) apply(s Session) (Session, bool) {
	if s.Document == nil || !s.Signers.Contains(op.Signer) {
		return s, false
	}
	page := op.Page
	if page == 0 {
		page = 1
	}
	if !s.Document.HasPage(page) {
		return s, false
	}
	next, ok := s.Fields.Add(op.Signer, op.Type, page, op.X, op.Y)
	if !ok {
		return s, false
	}
	s.Fields = next
	return s, true
}

// UpdateField patches position, size or the required flag of a field.
type UpdateField struct {
	Index int
	Patch field.Patch
}

func (op UpdateField) apply(s Session) (Session, bool) {
	next, ok := s.Fields.Update(op.Index, op.Patch)
	if !ok {
		return s, false
	}
	s.Fields = next
	return s, true
}

// RemoveField drops the field at Index.
type RemoveField struct {
	Index int
}

func (op RemoveField) apply(s Session) (Session, bool) {
	next, ok := s.Fields.Remove(op.Index)
	if !ok {
		return s, false
	}
	s.Fields = next
	return s, true
}

// SetStep moves to Target. Moving back (or staying) always works; moving
// forward needs Target's guard. SENT can only be reached by dispatching and
// can only be left by Reset.
type SetStep struct {
	Target Step
}

func (op SetStep) apply(s Session) (Session, bool) {
	if !op.Target.Valid() || s.Step.IsTerminal() || op.Target.IsTerminal() {
		return s, false
	}
	if op.Target > s.Step && !s.CanEnter(op.Target) {
		return s, false
	}
	s.Step = op.Target
	return s, true
}

// SetMessage replaces the note sent along with the request.
type SetMessage struct {
	Text string
}

func (op SetMessage) apply(s Session) (Session, bool) {
	s.Message = op.Text
	return s, true
}

// ClearError dismisses LastError. Any operator action does the same, so
// this exists for views that only want to dismiss.
type ClearError struct{}

func (ClearError) apply(s Session) (Session, bool) {
	return s, true
}

// Reset returns to the initial state under a new session ID.
type Reset struct {
	ID string
}

func (op Reset) apply(s Session) (Session, bool) {
	id := op.ID
	if id == "" {
		id = s.ID
	}
	return NewSession(id), true
}

// BeginDispatch marks the session as sending. Refused unless CanSend holds.
type BeginDispatch struct{}

func (BeginDispatch) dispatchControl() {}

func (BeginDispatch) apply(s Session) (Session, bool) {
	if !s.CanSend() {
		return s, false
	}
	s.IsProcessing = true
	s.LastError = ""
	return s, true
}

// CompleteDispatch records a successful dispatch and moves to SENT.
type CompleteDispatch struct{}

func (CompleteDispatch) dispatchControl() {}

func (CompleteDispatch) apply(s Session) (Session, bool) {
	if !s.IsProcessing {
		return s, false
	}
	s.IsProcessing = false
	s.Step = StepSent
	return s, true
}

// FailDispatch records a failed dispatch and returns to REVIEW.
type FailDispatch struct {
	Reason string
}

func (FailDispatch) dispatchControl() {}

func (op FailDispatch) apply(s Session) (Session, bool) {
	if !s.IsProcessing {
		return s, false
	}
	reason := strings.TrimSpace(op.Reason)
	if reason == "" {
		reason = "dispatch failed"
	}
	s.IsProcessing = false
	s.Step = StepReview
	s.LastError = reason
	return s, true
}
