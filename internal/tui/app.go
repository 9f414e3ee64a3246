// internal/tui/app.go
//
// This is the main TUI for Countersign. It uses bubbletea, which follows
// The Elm Architecture:
//
// 1. Model: the App plus one view per workflow step
// 2. Update: routes messages to the view of the current step
// 3. View: renders header, step tracker, the active view and the log panel
//
// The session itself lives in the engine; views only keep view state.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/countersign/internal/directory"
	"github.com/kingrea/countersign/internal/intake"
	"github.com/kingrea/countersign/internal/logbook"
	"github.com/kingrea/countersign/internal/suggest"
	"github.com/kingrea/countersign/internal/workflow"
	"github.com/kingrea/countersign/internal/workflow/engine"
)

// Screen offsets of the active view's content: title, tracker and a blank
// line above the body box, plus the box border and padding.
const (
	contentTop  = 4
	contentLeft = 2
	logLines    = 6
)

// Deps are the collaborators the TUI drives.
type Deps struct {
	Engine    *engine.Engine
	Intake    *intake.Intake
	Directory directory.Directory
	Suggester suggest.Suggester
	Logbook   *logbook.Logbook
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithStatus sets the initial footer message.
func WithStatus(msg string) AppOption {
	return func(a *App) {
		a.statusMsg = msg
	}
}

// App is the main application model.
type App struct {
	ctx   *viewContext
	views map[workflow.Step]stepView

	upload  *uploadView
	signers *signersView
	fields  *fieldsView
	review  *reviewView
	sent    *sentView

	// sendSeq numbers dispatch attempts; pending is the one whose result
	// is still wanted, or 0.
	sendSeq   int
	pending   int
	lastStep  workflow.Step
	statusMsg string

	width  int
	height int
}

// NewApp creates a new App instance.
func NewApp(deps Deps, opts ...AppOption) (*App, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("tui: engine is required")
	}
	if deps.Intake == nil {
		deps.Intake = intake.New(intake.WithLogger(deps.Logbook))
	}
	if deps.Directory == nil {
		deps.Directory = directory.NewStatic()
	}
	if deps.Suggester == nil {
		deps.Suggester = suggest.Static{}
	}
	app := &App{
		ctx: &viewContext{
			Engine:    deps.Engine,
			Intake:    deps.Intake,
			Directory: deps.Directory,
			Suggester: deps.Suggester,
			Logbook:   deps.Logbook,
		},
		upload:  newUploadView(),
		signers: newSignersView(),
		fields:  newFieldsView(),
		review:  newReviewView(),
		sent:    newSentView(),
	}
	app.ctx.send = app.send
	app.ctx.cancel = app.cancelSend
	app.views = map[workflow.Step]stepView{
		workflow.StepUpload:  app.upload,
		workflow.StepSigners: app.signers,
		workflow.StepFields:  app.fields,
		workflow.StepReview:  app.review,
		workflow.StepSent:    app.sent,
	}
	app.lastStep = deps.Engine.Session().Step
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app, nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{loadCandidates(a.ctx.Directory)}
	for _, step := range workflow.Steps {
		if cmd := a.views[step].Init(a.ctx); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	a.ctx.Logbook.Info("Session %s opened on %s", a.session().ID, a.session().Step.FriendlyName())
	return tea.Batch(cmds...)
}

func (a *App) session() workflow.Session {
	return a.ctx.Engine.Session()
}

func (a *App) current() stepView {
	return a.views[a.session().Step]
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, a.broadcast(msg)

	case sendFinishedMsg:
		if msg.seq != a.pending {
			a.ctx.Logbook.Info("Send · discarded result of abandoned attempt %d", msg.seq)
			return a, nil
		}
		a.pending = 0
		switch {
		case msg.err == nil:
			a.statusMsg = "Signature request sent"
		case errors.Is(msg.err, engine.ErrCanceled):
			a.statusMsg = "Send canceled"
		case errors.Is(msg.err, engine.ErrNotReady), errors.Is(msg.err, engine.ErrSendInFlight):
			a.statusMsg = msg.err.Error()
		default:
			a.statusMsg = "Send failed: " + a.session().LastError
		}
		cmds = append(cmds, a.broadcast(msg))

	case tea.KeyMsg:
		view := a.current()
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "ctrl+n":
			cmds = append(cmds, a.advance())
			return a, tea.Batch(append(cmds, a.syncStep())...)
		}
		if !view.Captures(msg) {
			switch msg.String() {
			case "q":
				if !a.session().IsProcessing {
					return a, tea.Quit
				}
			case "esc", "b":
				a.back()
				return a, a.syncStep()
			}
		}
		_, cmd := view.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		msg.X -= contentLeft
		msg.Y -= contentTop
		_, cmd := a.current().Update(msg)
		cmds = append(cmds, cmd)

	default:
		cmds = append(cmds, a.broadcast(msg))
	}
	cmds = append(cmds, a.syncStep())
	return a, tea.Batch(cmds...)
}

func (a *App) broadcast(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	for _, step := range workflow.Steps {
		if _, cmd := a.views[step].Update(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

// syncStep tells views when the session moved to another step, whichever
// path moved it.
func (a *App) syncStep() tea.Cmd {
	step := a.session().Step
	if step == a.lastStep {
		return nil
	}
	a.lastStep = step
	return a.broadcast(stepEnteredMsg{step: step})
}

// advance performs the forward action of the current step. Disabled
// forward navigation is a no-op apart from explaining why.
func (a *App) advance() tea.Cmd {
	s := a.session()
	view := a.views[s.Step]
	if s.IsProcessing {
		return nil
	}
	if !view.CanAdvance(s) {
		if blockers := s.Blockers(); len(blockers) > 0 {
			a.statusMsg = blockers[0]
		}
		return nil
	}
	switch s.Step {
	case workflow.StepReview:
		return a.send()
	case workflow.StepSent:
		a.startOver()
		return nil
	}
	next := s.Step.Next()
	if a.ctx.apply(workflow.SetStep{Target: next}, fmt.Sprintf("Step · %s", next.FriendlyName())) {
		a.statusMsg = ""
	}
	return nil
}

func (a *App) back() {
	s := a.session()
	if s.IsProcessing || s.Step.IsTerminal() || s.Step == workflow.StepUpload {
		return
	}
	prev := s.Step.Previous()
	a.ctx.apply(workflow.SetStep{Target: prev}, fmt.Sprintf("Step · back to %s", prev.FriendlyName()))
}

// send starts the single outstanding dispatch. The engine refuses a second
// claim as well; pending only avoids spawning a goroutine for it.
func (a *App) send() tea.Cmd {
	if a.pending != 0 {
		return nil
	}
	s := a.session()
	if !s.CanSend() {
		if blockers := s.Blockers(); len(blockers) > 0 {
			a.statusMsg = blockers[0]
		}
		return nil
	}
	a.review.commitMessage()
	a.sendSeq++
	seq := a.sendSeq
	a.pending = seq
	a.statusMsg = "Sending…"
	eng := a.ctx.Engine
	return tea.Batch(a.review.startSpinner(), func() tea.Msg {
		return sendFinishedMsg{seq: seq, err: eng.Send(context.Background())}
	})
}

// cancelSend abandons the pending attempt. The dispatcher may still be
// running; whatever it returns later is dropped by seq.
func (a *App) cancelSend() bool {
	if !a.ctx.Engine.CancelSend() {
		return false
	}
	a.pending = 0
	a.statusMsg = "Send canceled"
	a.review.spinning = a.review.suggesting
	return true
}

func (a *App) startOver() {
	a.pending = 0
	s := a.ctx.Engine.StartOver()
	a.statusMsg = fmt.Sprintf("Started session %s", s.ID)
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	s := a.session()
	view := a.views[s.Step]
	inner := contentWidth(width)

	header := titleStyle.Render("✍ COUNTERSIGN") + mutedStyle.Render("  "+s.ID)
	body := boxStyle.
		Padding(0, 1).
		Width(inner + 2).
		Render(view.View(inner))

	sections := []string{header, a.renderTracker(s), "", body}
	sections = append(sections, a.renderFooter(s, view))
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	return strings.Join(sections, "\n")
}

func (a *App) renderTracker(s workflow.Session) string {
	parts := make([]string, 0, len(workflow.Steps))
	for _, step := range workflow.Steps {
		pos, _ := step.Position()
		label := fmt.Sprintf("%d %s", pos, step.FriendlyName())
		switch {
		case step == s.Step:
			parts = append(parts, headingStyle.Render("● "+label))
		case step < s.Step:
			parts = append(parts, okStyle.Render("✓ "+label))
		case s.CanEnter(step):
			parts = append(parts, hintStyle.Render("○ "+label))
		default:
			parts = append(parts, mutedStyle.Render("○ "+label))
		}
	}
	return strings.Join(parts, mutedStyle.Render(" → "))
}

func (a *App) renderFooter(s workflow.Session, view stepView) string {
	forward := "next: " + s.Step.Next().FriendlyName()
	switch s.Step {
	case workflow.StepReview:
		forward = "send"
	case workflow.StepSent:
		forward = "start over"
	}
	canForward := !s.IsProcessing && view.CanAdvance(s)
	canBack := !s.IsProcessing && s.Step != workflow.StepUpload && !s.Step.IsTerminal()
	hints := joinHints(
		keyHint("ctrl+n", forward, canForward),
		keyHint("esc", "back", canBack),
		keyHint("q", "quit", !s.IsProcessing),
	)
	lines := []string{hints}
	if a.statusMsg != "" {
		lines = append(lines, mutedStyle.Render(a.statusMsg))
	}
	return lipgloss.NewStyle().MarginTop(1).Render(strings.Join(lines, "\n"))
}

func (a *App) renderLogPanel() string {
	if a.ctx.Logbook == nil {
		return ""
	}
	lines, total := a.ctx.Logbook.Tail(logLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.ctx.Logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := headingStyle.Render(fmt.Sprintf("LOG · %s (%d)", fileName, total))
	body := hintStyle.Render(strings.Join(lines, "\n"))
	return boxStyle.Padding(0, 1).Render(fmt.Sprintf("%s\n%s", head, body))
}

// contentWidth is the width available to a view inside the body box.
func contentWidth(total int) int {
	return max(30, total-4)
}
