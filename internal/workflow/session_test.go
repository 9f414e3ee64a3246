package workflow

import (
	"testing"

	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/placement"
	"github.com/kingrea/countersign/internal/signer"
)

var canvas = placement.Rect{Left: 0, Top: 0, Width: 1000, Height: 1000}

func lease() Document {
	return Document{Name: "Lease", FileRef: "file://lease.pdf", PreviewHandle: "preview_1", PageCount: 2}
}

func alice() signer.Candidate {
	return signer.Candidate{Name: "A", Email: "a@example.com", Role: signer.RolePrimaryTenant}
}

func bob() signer.Candidate {
	return signer.Candidate{Name: "B", Email: "b@example.com", Role: signer.RoleLandlord}
}

func apply(t *testing.T, s Session, ops ...Operation) Session {
	t.Helper()
	for _, op := range ops {
		next, ok := Apply(s, op)
		if !ok {
			t.Fatalf("operation %T refused", op)
		}
		s = next
	}
	return s
}

func readySession(t *testing.T) Session {
	t.Helper()
	s := apply(t, NewSession("s1"),
		AttachDocument{Document: lease()},
		AddSigner{Candidate: alice()},
		AddSigner{Candidate: bob()},
		PlaceField{Signer: "a@example.com", Type: field.TypeSignature, Page: 1, X: 10, Y: 10},
		PlaceField{Signer: "b@example.com", Type: field.TypeDate, Page: 1, X: 40, Y: 10},
		SetStep{Target: StepSigners},
		SetStep{Target: StepFields},
		SetStep{Target: StepReview},
	)
	return s
}

func TestExampleScenario(t *testing.T) {
	s := apply(t, NewSession("s1"),
		AttachDocument{Document: lease()},
		SetStep{Target: StepSigners},
		AddSigner{Candidate: alice()},
		AddSigner{Candidate: bob()},
		SetStep{Target: StepFields},
	)
	s = HandleDrop(s, Place{Type: field.TypeSignature, Signer: "a@example.com"}, placement.Point{X: 850, Y: 950}, canvas)
	f, ok := s.Fields.At(0)
	if !ok {
		t.Fatalf("expected field to be placed")
	}
	if f.X != 80 || f.Y != 90 {
		t.Fatalf("expected (80, 90), got (%v, %v)", f.X, f.Y)
	}
	if next := Reduce(s, SetStep{Target: StepReview}); next.Step != StepFields {
		t.Fatalf("expected advance to be refused while B has no fields, got %s", next.Step)
	}
	s = HandleDrop(s, Place{Type: field.TypeDate, Signer: "b@example.com"}, placement.Point{X: 100, Y: 100}, canvas)
	s = apply(t, s, SetStep{Target: StepReview})
	if s.Step != StepReview {
		t.Fatalf("expected REVIEW, got %s", s.Step)
	}
	s = apply(t, s, BeginDispatch{})
	if !s.IsProcessing {
		t.Fatalf("expected processing during dispatch")
	}
	s = apply(t, s, FailDispatch{Reason: "network down"})
	if s.Step != StepReview || s.IsProcessing || s.LastError != "network down" {
		t.Fatalf("expected REVIEW with error and no processing, got %s processing=%v err=%q", s.Step, s.IsProcessing, s.LastError)
	}
}

func TestGuardsCompose(t *testing.T) {
	s := readySession(t)
	if !s.CanProceedFromFields() || !s.CanProceedFromSigners() || !s.CanProceedFromUpload() {
		t.Fatalf("expected all guards to hold")
	}
	if !s.CanSend() {
		t.Fatalf("expected send to be allowed on REVIEW")
	}
	s = Reduce(s, SetStep{Target: StepFields})
	if s.CanSend() {
		t.Fatalf("expected send to require REVIEW")
	}
}

func TestForwardRefusedWithoutGuard(t *testing.T) {
	s := NewSession("s1")
	if next, ok := Apply(s, SetStep{Target: StepSigners}); ok || next.Step != StepUpload {
		t.Fatalf("expected SIGNERS refused without a document")
	}
	s = apply(t, s, AttachDocument{Document: lease()})
	if _, ok := Apply(s, SetStep{Target: StepFields}); ok {
		t.Fatalf("expected FIELDS refused without signers")
	}
	if _, ok := Apply(s, SetStep{Target: StepSent}); ok {
		t.Fatalf("expected SENT never reachable through SetStep")
	}
}

func TestBackwardAlwaysAllowed(t *testing.T) {
	s := readySession(t)
	s = apply(t, s, SetStep{Target: StepUpload})
	if s.Step != StepUpload {
		t.Fatalf("expected UPLOAD, got %s", s.Step)
	}
	s = apply(t, s, SetStep{Target: StepReview})
	if s.Step != StepReview {
		t.Fatalf("expected jump forward to REVIEW with guards satisfied, got %s", s.Step)
	}
}

func TestRemoveSignerCascades(t *testing.T) {
	s := readySession(t)
	s = apply(t, s, RemoveSigner{Index: 1})
	if s.Fields.Len() != 1 {
		t.Fatalf("expected B's field removed, got %d fields", s.Fields.Len())
	}
	if f, _ := s.Fields.At(0); f.Signer != "a@example.com" {
		t.Fatalf("expected A's field to survive, got %s", f.Signer)
	}
	if s.Step != StepReview {
		t.Fatalf("expected REVIEW to remain valid, got %s", s.Step)
	}
}

func TestNoOrphanedProgression(t *testing.T) {
	s := readySession(t)
	s = apply(t, s, RemoveField{Index: 1})
	if s.Step == StepReview {
		t.Fatalf("expected REVIEW to be left once B has no fields")
	}
	if s.Step != StepFields {
		t.Fatalf("expected demotion to FIELDS, got %s", s.Step)
	}
	s = apply(t, s, AddSigner{Candidate: signer.Candidate{Name: "C", Email: "c@example.com"}})
	if s.CanProceedFromFields() {
		t.Fatalf("expected new signer without fields to block")
	}
}

func TestAddSignerRefusals(t *testing.T) {
	s := apply(t, NewSession("s1"), AddSigner{Candidate: alice()})
	if _, ok := Apply(s, AddSigner{Candidate: alice()}); ok {
		t.Fatalf("expected duplicate email to be refused")
	}
	if _, ok := Apply(s, AddSigner{Candidate: signer.Candidate{Name: "X"}}); ok {
		t.Fatalf("expected missing email to be refused")
	}
}

func TestToggleSigner(t *testing.T) {
	s := apply(t, NewSession("s1"), ToggleSigner{Candidate: alice()})
	if s.Signers.Len() != 1 {
		t.Fatalf("expected toggle on to add")
	}
	s = apply(t, s, ToggleSigner{Candidate: alice()})
	if s.Signers.Len() != 0 {
		t.Fatalf("expected toggle off to remove")
	}
}

func TestUpdateSignerEmailRebindsFields(t *testing.T) {
	s := readySession(t)
	email := "alice@example.com"
	s = apply(t, s, UpdateSigner{Index: 0, Patch: signer.Patch{Email: &email}})
	if got := s.Fields.CountBySigner()[email]; got != 1 {
		t.Fatalf("expected field to follow the email, got %d", got)
	}
	if s.Step != StepReview {
		t.Fatalf("expected REVIEW to survive rebind, got %s", s.Step)
	}
	taken := "b@example.com"
	if _, ok := Apply(s, UpdateSigner{Index: 0, Patch: signer.Patch{Email: &taken}}); ok {
		t.Fatalf("expected colliding email to be refused")
	}
}

func TestDocumentChangeClearsFields(t *testing.T) {
	s := readySession(t)
	same := lease()
	same.Name = "Lease v2"
	s = apply(t, s, AttachDocument{Document: same})
	if s.Fields.Len() != 2 {
		t.Fatalf("expected same file to keep fields")
	}
	other := lease()
	other.FileRef = "file://other.pdf"
	other.PreviewHandle = "preview_2"
	s = apply(t, s, AttachDocument{Document: other})
	if s.Fields.Len() != 0 {
		t.Fatalf("expected new file to clear fields, got %d", s.Fields.Len())
	}
	if s.Step != StepFields {
		t.Fatalf("expected demotion to FIELDS, got %s", s.Step)
	}
	s = apply(t, s, ClearDocument{})
	if s.Document != nil || s.Step != StepUpload {
		t.Fatalf("expected cleared document back on UPLOAD, got %s", s.Step)
	}
	if s.Signers.Len() != 2 {
		t.Fatalf("expected signers kept")
	}
}

func TestRenameRefusesBlank(t *testing.T) {
	s := apply(t, NewSession("s1"), AttachDocument{Document: lease()})
	if _, ok := Apply(s, RenameDocument{Name: "  "}); ok {
		t.Fatalf("expected blank name to be refused")
	}
	s = apply(t, s, RenameDocument{Name: "Lease 2026"}, DescribeDocument{Description: "Unit 4"})
	if s.Document.Name != "Lease 2026" || s.Document.Description != "Unit 4" {
		t.Fatalf("unexpected document %+v", s.Document)
	}
}

func TestPlaceFieldRespectsDocumentPages(t *testing.T) {
	s := apply(t, NewSession("s1"), AttachDocument{Document: lease()}, AddSigner{Candidate: alice()})
	if _, ok := Apply(s, PlaceField{Signer: "a@example.com", Type: field.TypeDate, Page: 3}); ok {
		t.Fatalf("expected page 3 of 2 to be refused")
	}
	if _, ok := Apply(s, PlaceField{Signer: "z@example.com", Type: field.TypeDate, Page: 1}); ok {
		t.Fatalf("expected unknown signer to be refused")
	}
	s = apply(t, s, PlaceField{Signer: "a@example.com", Type: field.TypeDate, Page: 2})
	if f, _ := s.Fields.At(0); f.Page != 2 {
		t.Fatalf("expected page 2, got %d", f.Page)
	}
}

func TestProcessingFreezesOperator(t *testing.T) {
	s := apply(t, readySession(t), BeginDispatch{})
	if _, ok := Apply(s, RemoveField{Index: 0}); ok {
		t.Fatalf("expected edits to be refused while sending")
	}
	if _, ok := Apply(s, BeginDispatch{}); ok {
		t.Fatalf("expected a second dispatch to be refused")
	}
	s = apply(t, s, CompleteDispatch{})
	if s.Step != StepSent || s.IsProcessing {
		t.Fatalf("expected SENT, got %s processing=%v", s.Step, s.IsProcessing)
	}
	if _, ok := Apply(s, SetStep{Target: StepReview}); ok {
		t.Fatalf("expected SENT to be terminal")
	}
	s = apply(t, s, Reset{ID: "s2"})
	if s.ID != "s2" || s.Step != StepUpload || s.Document != nil || s.Signers.Len() != 0 {
		t.Fatalf("expected initial state after reset, got %+v", s)
	}
}

func TestUserActionClearsLastError(t *testing.T) {
	s := apply(t, readySession(t), BeginDispatch{}, FailDispatch{})
	if s.LastError == "" {
		t.Fatalf("expected default failure reason")
	}
	s = Reduce(s, SetMessage{Text: "please sign"})
	if s.LastError != "" {
		t.Fatalf("expected error cleared, got %q", s.LastError)
	}
	s = apply(t, s, BeginDispatch{}, FailDispatch{Reason: "boom"})
	next, changed := Apply(s, SetStep{Target: StepSent})
	if !changed || next.LastError != "" {
		t.Fatalf("expected refused action to still clear the error")
	}
}

func TestMoveKeepsIdentity(t *testing.T) {
	s := readySession(t)
	s = HandleDrop(s, Move{Index: 0}, placement.Point{X: 995, Y: 20}, canvas)
	f, _ := s.Fields.At(0)
	if f.X != 80 || f.Y != 2 {
		t.Fatalf("expected (80, 2), got (%v, %v)", f.X, f.Y)
	}
	if f.Type != field.TypeSignature || f.Signer != "a@example.com" {
		t.Fatalf("expected type and signer unchanged, got %+v", f)
	}
	if next := HandleDrop(s, Move{Index: 9}, placement.Point{}, canvas); next.Fields.Len() != 2 {
		t.Fatalf("expected bad index to be ignored")
	}
}

func TestDropPayloadRoundTrip(t *testing.T) {
	data, err := MarshalDropPayload(Move{Index: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ParseDropPayload(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m, ok := got.(Move); !ok || m.Index != 3 {
		t.Fatalf("expected Move{3}, got %#v", got)
	}
	if _, err := ParseDropPayload([]byte(`{"kind":"teleport","data":{}}`)); err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
	if _, err := ParseDropPayload([]byte(`{"data":{"index":1}}`)); err == nil {
		t.Fatalf("expected missing kind to fail")
	}
}

func TestNormalizeRepairsHandEditedSessions(t *testing.T) {
	s := NewSession("ses_1")
	s.Step = StepReview
	s.IsProcessing = true
	if got := Normalize(s); got.Step != StepUpload || got.IsProcessing {
		t.Fatalf("expected empty session on UPLOAD and idle, got %s processing=%v", got.Step, got.IsProcessing)
	}

	s = Reduce(NewSession("ses_2"), AttachDocument{Document: lease()})
	s = Reduce(s, AddSigner{Candidate: signer.Candidate{Name: "A", Email: "a@example.com"}})
	s.Step = StepSent
	if got := Normalize(s); got.Step != StepFields {
		t.Fatalf("expected SENT without fields to fall back to FIELDS, got %s", got.Step)
	}

	s = Reduce(s, PlaceField{Signer: "a@example.com", Type: field.TypeSignature, Page: 1})
	if got := Normalize(s); got.Step != StepSent {
		t.Fatalf("expected a sendable SENT session to stay, got %s", got.Step)
	}
}
