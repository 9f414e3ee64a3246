package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/countersign/internal/directory"
	"github.com/kingrea/countersign/internal/intake"
	"github.com/kingrea/countersign/internal/logbook"
	"github.com/kingrea/countersign/internal/signer"
	"github.com/kingrea/countersign/internal/suggest"
	"github.com/kingrea/countersign/internal/workflow"
	"github.com/kingrea/countersign/internal/workflow/engine"
)

// stepView renders and drives one workflow step. Views read the session
// from the engine on every call and never cache it beyond view-only state.
type stepView interface {
	// Name returns the view's display name
	Name() string

	// Step returns which workflow step this view handles
	Step() workflow.Step

	// Init wires the view to shared context and returns a startup command
	Init(ctx *viewContext) tea.Cmd

	// Update handles messages. Key and mouse messages only reach the view
	// of the current step; everything else is broadcast.
	Update(msg tea.Msg) (stepView, tea.Cmd)

	// View renders the view into the given content width
	View(width int) string

	// CanAdvance reports whether forward navigation is enabled
	CanAdvance(s workflow.Session) bool

	// Captures reports whether the view wants key before the app's
	// navigation bindings see it, e.g. while a text input is focused.
	Captures(key tea.KeyMsg) bool
}

// viewContext provides shared collaborators for all views.
type viewContext struct {
	Engine    *engine.Engine
	Intake    *intake.Intake
	Directory directory.Directory
	Suggester suggest.Suggester
	Logbook   *logbook.Logbook

	// send starts a dispatch and cancel abandons it. Both are owned by the
	// App so only one attempt is tracked at a time.
	send   func() tea.Cmd
	cancel func() bool
}

func (c *viewContext) session() workflow.Session {
	return c.Engine.Session()
}

// apply runs op and records describe in the journey log when it took effect.
func (c *viewContext) apply(op workflow.Operation, describe string) bool {
	ok := c.Engine.Apply(op)
	if ok && describe != "" {
		c.Logbook.Info("%s", describe)
	}
	return ok
}

// stepEnteredMsg is broadcast whenever the session lands on a new step.
type stepEnteredMsg struct {
	step workflow.Step
}

type documentLoadedMsg struct {
	doc workflow.Document
	err error
}

type candidatesLoadedMsg struct {
	candidates []signer.Candidate
	err        error
}

type suggestionMsg struct {
	token int
	text  string
	err   error
}

// sendFinishedMsg carries the result of the attempt numbered seq.
type sendFinishedMsg struct {
	seq int
	err error
}

func loadCandidates(dir directory.Directory) tea.Cmd {
	if dir == nil {
		return nil
	}
	return func() tea.Msg {
		candidates, err := dir.Candidates(context.Background())
		return candidatesLoadedMsg{candidates: candidates, err: err}
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")).Strikethrough(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444"))
)

func signerStyle(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// truncate cuts s to width runes so fixed-height layouts never wrap.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

func keyHint(key, label string, enabled bool) string {
	text := key + " " + label
	if !enabled {
		return disabledStyle.Render(text)
	}
	return hintStyle.Render(text)
}

func joinHints(hints ...string) string {
	var parts []string
	for _, h := range hints {
		if strings.TrimSpace(h) != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, "    ")
}

// joinColumns places left and right side by side, left padded to width.
func joinColumns(left, right string, width int) string {
	l := lipgloss.NewStyle().Width(width).MarginRight(2).Render(left)
	return lipgloss.JoinHorizontal(lipgloss.Top, l, right)
}
