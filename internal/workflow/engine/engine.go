package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/countersign/internal/workflow"
)

var (
	// ErrSendInFlight is returned when a dispatch is already outstanding.
	ErrSendInFlight = errors.New("engine: a send is already in progress")
	// ErrNotReady is returned when the session cannot be sent yet.
	ErrNotReady = errors.New("engine: session is not ready to send")
	// ErrCanceled is returned by Send when CancelSend or StartOver abandoned it.
	ErrCanceled = errors.New("engine: send canceled")
)

// Dispatcher delivers a finished envelope. It must honor ctx cancellation.
type Dispatcher interface {
	Dispatch(ctx context.Context, env workflow.Envelope) error
}

// Logger is the subset of the logbook the engine writes to.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Engine owns one session. All methods are safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	session    workflow.Session
	dispatcher Dispatcher
	repo       StateStore
	clock      func() time.Time
	newID      func() string
	timeout    time.Duration
	logger     Logger

	attempt  int
	inflight int
	cancel   context.CancelFunc
	last     *DispatchRecord
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithStateStore enables draft persistence.
func WithStateStore(store StateStore) Option {
	return func(e *Engine) {
		e.repo = store
	}
}

// WithIDGenerator replaces the session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithTimeout bounds each dispatch. Zero disables the deadline; CancelSend
// still works.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return "ses_" + uuid.NewString()
}

// New wires an engine to its dispatcher and starts a fresh session.
func New(dispatcher Dispatcher, opts ...Option) (*Engine, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("engine: dispatcher is required")
	}
	engine := &Engine{
		dispatcher: dispatcher,
		clock:      time.Now,
		newID:      NewSessionID,
		timeout:    30 * time.Second,
		logger:     nopLogger{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.logger == nil {
		engine.logger = nopLogger{}
	}
	engine.session = workflow.NewSession(engine.newID())
	return engine, nil
}

// Session returns the current session. Registries are copy-on-write, so
// the caller cannot disturb the engine through the returned value.
func (e *Engine) Session() workflow.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Snapshot returns the current state including the last dispatch attempt.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Apply runs an operator operation and reports whether it changed the
// session. Dispatch lifecycle operations are owned by Send and refused here.
func (e *Engine) Apply(op workflow.Operation) bool {
	if op == nil || workflow.IsDispatchControl(op) {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, changed := workflow.Apply(e.session, op)
	if !changed {
		return false
	}
	e.session = next
	e.persistLocked()
	return true
}

// Send dispatches the session and blocks until the dispatcher returns, the
// timeout fires, or CancelSend is called. At most one send is outstanding;
// a concurrent call returns ErrSendInFlight without reaching the dispatcher.
func (e *Engine) Send(ctx context.Context) error {
	claim, err := e.claimSend(ctx)
	if err != nil {
		return err
	}
	defer claim.cancel()
	dispatchErr := e.dispatcher.Dispatch(claim.ctx, claim.envelope)
	return e.finishSend(claim, dispatchErr)
}

// CancelSend abandons the outstanding dispatch. The session returns to
// REVIEW immediately even if the dispatcher ignores cancellation; its late
// result is discarded.
func (e *Engine) CancelSend() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.IsProcessing {
		return false
	}
	e.abandonLocked("dispatch canceled")
	e.persistLocked()
	return true
}

// StartOver abandons any outstanding send, discards the draft and begins
// an empty session under a new ID.
func (e *Engine) StartOver() workflow.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsProcessing {
		e.abandonLocked("dispatch canceled")
	}
	e.session = workflow.Reduce(e.session, workflow.Reset{ID: e.newID()})
	e.last = nil
	if e.repo != nil {
		if err := e.repo.Clear(); err != nil {
			e.logger.Warn("engine: clear draft: %v", err)
		}
	}
	e.logger.Info("Started new session %s", e.session.ID)
	return e.session
}

// Resume restores the persisted draft. It returns ErrStateNotFound when
// there is nothing to restore.
func (e *Engine) Resume() (workflow.Session, error) {
	if e.repo == nil {
		return workflow.Session{}, ErrStateNotFound
	}
	state, err := e.repo.Load()
	if err != nil {
		return workflow.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsProcessing {
		return workflow.Session{}, ErrSendInFlight
	}
	restored := workflow.Normalize(state.Session)
	restored.LastError = ""
	if restored.ID == "" {
		restored.ID = e.newID()
	}
	e.session = restored
	e.last = cloneRecord(state.LastDispatch)
	e.logger.Info("Resumed session %s on %s", restored.ID, restored.Step.FriendlyName())
	return e.session, nil
}

func (e *Engine) snapshotLocked() State {
	status, reason := deriveStatus(e.session)
	return State{
		Session:      e.session,
		Status:       status,
		StatusReason: reason,
		LastDispatch: cloneRecord(e.last),
		UpdatedAt:    e.now(),
	}
}

func (e *Engine) persistLocked() {
	if e.repo == nil {
		return
	}
	if err := e.repo.Save(e.snapshotLocked()); err != nil {
		e.logger.Warn("engine: save draft: %v", err)
	}
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
