package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/signer"
	"github.com/kingrea/countersign/internal/workflow"
)

type stubDispatcher struct {
	calls   atomic.Int32
	err     error
	started chan struct{}
	release chan struct{}
	honor   bool
	last    workflow.Envelope
	mu      sync.Mutex
}

func (d *stubDispatcher) Dispatch(ctx context.Context, env workflow.Envelope) error {
	d.calls.Add(1)
	d.mu.Lock()
	d.last = env
	d.mu.Unlock()
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		if d.honor {
			select {
			case <-d.release:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			<-d.release
		}
	}
	return d.err
}

func newEngineHarness(t *testing.T, d *stubDispatcher, opts ...Option) *Engine {
	t.Helper()
	ids := 0
	opts = append([]Option{WithIDGenerator(func() string {
		ids++
		return "ses_" + string(rune('a'+ids-1))
	})}, opts...)
	eng, err := New(d, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func prepare(t *testing.T, eng *Engine) {
	t.Helper()
	ops := []workflow.Operation{
		workflow.AttachDocument{Document: workflow.Document{Name: "Lease", FileRef: "file://lease.pdf", PreviewHandle: "preview_1"}},
		workflow.AddSigner{Candidate: signer.Candidate{Name: "A", Email: "a@example.com"}},
		workflow.AddSigner{Candidate: signer.Candidate{Name: "B", Email: "b@example.com"}},
		workflow.PlaceField{Signer: "a@example.com", Type: field.TypeSignature, Page: 1, X: 10, Y: 10},
		workflow.PlaceField{Signer: "b@example.com", Type: field.TypeDate, Page: 1, X: 30, Y: 10},
		workflow.SetStep{Target: workflow.StepSigners},
		workflow.SetStep{Target: workflow.StepFields},
		workflow.SetStep{Target: workflow.StepReview},
	}
	for _, op := range ops {
		if !eng.Apply(op) {
			t.Fatalf("operation %T refused", op)
		}
	}
}

func TestNewRequiresDispatcher(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error without dispatcher")
	}
}

func TestApplyRefusesDispatchControl(t *testing.T) {
	eng := newEngineHarness(t, &stubDispatcher{})
	prepare(t, eng)
	if eng.Apply(workflow.BeginDispatch{}) {
		t.Fatalf("expected BeginDispatch to be refused through Apply")
	}
	if eng.Session().IsProcessing {
		t.Fatalf("expected session to stay idle")
	}
}

func TestSendSuccessMovesToSent(t *testing.T) {
	d := &stubDispatcher{}
	eng := newEngineHarness(t, d)
	prepare(t, eng)
	if err := eng.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	s := eng.Session()
	if s.Step != workflow.StepSent || s.IsProcessing {
		t.Fatalf("expected SENT and idle, got %s processing=%v", s.Step, s.IsProcessing)
	}
	if d.last.SessionID != s.ID || len(d.last.Fields) != 2 {
		t.Fatalf("unexpected envelope %+v", d.last)
	}
	if snap := eng.Snapshot(); snap.Status != StatusSent || snap.LastDispatch == nil || !snap.LastDispatch.Finished() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSendFailureReturnsToReview(t *testing.T) {
	eng := newEngineHarness(t, &stubDispatcher{err: errors.New("network down")})
	prepare(t, eng)
	err := eng.Send(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	s := eng.Session()
	if s.Step != workflow.StepReview || s.IsProcessing || s.LastError != "network down" {
		t.Fatalf("expected REVIEW with error, got %s processing=%v err=%q", s.Step, s.IsProcessing, s.LastError)
	}
	if snap := eng.Snapshot(); snap.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", snap.Status)
	}
}

func TestSendNotReady(t *testing.T) {
	d := &stubDispatcher{}
	eng := newEngineHarness(t, d)
	if err := eng.Send(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if d.calls.Load() != 0 {
		t.Fatalf("expected no dispatch")
	}
}

func TestSingleInFlightSend(t *testing.T) {
	d := &stubDispatcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	eng := newEngineHarness(t, d)
	prepare(t, eng)
	done := make(chan error, 1)
	go func() { done <- eng.Send(context.Background()) }()
	<-d.started
	if err := eng.Send(context.Background()); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
	if eng.Apply(workflow.RemoveField{Index: 0}) {
		t.Fatalf("expected edits to be frozen while sending")
	}
	close(d.release)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := d.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", got)
	}
}

func TestCancelSendReleasesSession(t *testing.T) {
	d := &stubDispatcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	eng := newEngineHarness(t, d)
	prepare(t, eng)
	done := make(chan error, 1)
	go func() { done <- eng.Send(context.Background()) }()
	<-d.started
	if !eng.CancelSend() {
		t.Fatalf("expected cancel to apply")
	}
	s := eng.Session()
	if s.IsProcessing || s.Step != workflow.StepReview || s.LastError == "" {
		t.Fatalf("expected REVIEW with error after cancel, got %s processing=%v", s.Step, s.IsProcessing)
	}
	close(d.release)
	if err := <-done; !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if eng.Session().Step != workflow.StepReview {
		t.Fatalf("expected late success to be discarded")
	}
	if eng.CancelSend() {
		t.Fatalf("expected nothing to cancel")
	}
}

func TestSendTimeout(t *testing.T) {
	d := &stubDispatcher{release: make(chan struct{}), honor: true}
	eng := newEngineHarness(t, d, WithTimeout(10*time.Millisecond))
	prepare(t, eng)
	err := eng.Send(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	s := eng.Session()
	if s.Step != workflow.StepReview || s.IsProcessing {
		t.Fatalf("expected REVIEW after timeout, got %s", s.Step)
	}
	if s.LastError != "dispatch timed out after 10ms" {
		t.Fatalf("unexpected error %q", s.LastError)
	}
}

func TestStartOverResetsAndClearsDraft(t *testing.T) {
	repo := NewRepository(t.TempDir())
	eng := newEngineHarness(t, &stubDispatcher{}, WithStateStore(repo))
	prepare(t, eng)
	if err := eng.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	before := eng.Session().ID
	s := eng.StartOver()
	if s.ID == before || s.Step != workflow.StepUpload || s.Document != nil || s.Signers.Len() != 0 {
		t.Fatalf("expected a fresh session, got %+v", s)
	}
	if _, err := repo.Load(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected draft to be cleared, got %v", err)
	}
}

func TestResumeRestoresDraft(t *testing.T) {
	dir := t.TempDir()
	eng := newEngineHarness(t, &stubDispatcher{}, WithStateStore(NewRepository(dir)))
	prepare(t, eng)
	original := eng.Session()

	other := newEngineHarness(t, &stubDispatcher{}, WithStateStore(NewRepository(dir)))
	restored, err := other.Resume()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if restored.ID != original.ID || restored.Step != workflow.StepReview {
		t.Fatalf("expected %s on REVIEW, got %s on %s", original.ID, restored.ID, restored.Step)
	}
	if restored.Fields.Len() != 2 || restored.Signers.Len() != 2 {
		t.Fatalf("expected registries restored")
	}
	if err := other.Send(context.Background()); err != nil {
		t.Fatalf("expected resumed session to be sendable: %v", err)
	}
}

func TestResumeWithoutDraft(t *testing.T) {
	eng := newEngineHarness(t, &stubDispatcher{}, WithStateStore(NewRepository(t.TempDir())))
	if _, err := eng.Resume(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
	noStore := newEngineHarness(t, &stubDispatcher{})
	if _, err := noStore.Resume(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound without a store, got %v", err)
	}
}

func TestRepositoryNeverRestoresProcessing(t *testing.T) {
	repo := NewRepository(t.TempDir())
	s := workflow.NewSession("ses_x")
	s.IsProcessing = true
	if err := repo.Save(State{Session: s, Status: StatusSending}); err != nil {
		t.Fatalf("save: %v", err)
	}
	state, err := repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Session.IsProcessing {
		t.Fatalf("expected processing flag to be dropped")
	}
	if err := repo.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := repo.Clear(); err != nil {
		t.Fatalf("expected clearing twice to succeed: %v", err)
	}
}

func TestResumeSettlesStaleDraft(t *testing.T) {
	repo := NewRepository(t.TempDir())
	s := workflow.NewSession("ses_stale")
	for _, op := range []workflow.Operation{
		workflow.AttachDocument{Document: workflow.Document{Name: "Lease", FileRef: "file://lease.pdf"}},
		workflow.AddSigner{Candidate: signer.Candidate{Name: "A", Email: "a@example.com"}},
	} {
		s = workflow.Reduce(s, op)
	}
	s.Step = workflow.StepReview
	if err := repo.Save(State{Session: s}); err != nil {
		t.Fatalf("save: %v", err)
	}
	eng := newEngineHarness(t, &stubDispatcher{}, WithStateStore(repo))
	restored, err := eng.Resume()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if restored.Step != workflow.StepFields {
		t.Fatalf("expected draft without fields to land on FIELDS, got %s", restored.Step)
	}
	if err := eng.Send(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected restored draft to be unsendable, got %v", err)
	}
}
