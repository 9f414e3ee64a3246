package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/countersign/internal/workflow"
)

// sentView confirms the dispatch. Its only action is starting over.
type sentView struct {
	ctx *viewContext
}

func newSentView() *sentView { return &sentView{} }

func (v *sentView) Name() string        { return "Sent" }
func (v *sentView) Step() workflow.Step { return workflow.StepSent }

func (v *sentView) Init(ctx *viewContext) tea.Cmd {
	v.ctx = ctx
	return nil
}

func (v *sentView) CanAdvance(workflow.Session) bool { return true }

func (v *sentView) Captures(tea.KeyMsg) bool { return false }

func (v *sentView) Update(msg tea.Msg) (stepView, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		s := v.ctx.Engine.StartOver()
		v.ctx.Logbook.Info("Session %s started", s.ID)
	}
	return v, nil
}

func (v *sentView) View(width int) string {
	s := v.ctx.session()
	name := "document"
	if s.Document != nil {
		name = s.Document.Name
	}
	lines := []string{
		okStyle.Render("✓ Signature request sent"),
		"",
		truncate(fmt.Sprintf("%s went to %d signer(s) with %d field(s).", name, s.Signers.Len(), s.Fields.Len()), width),
	}
	for _, sg := range s.Signers.All() {
		lines = append(lines, fmt.Sprintf("  %s %s <%s>", signerStyle(sg.Color).Render("●"), sg.Name, sg.Email))
	}
	if snap := v.ctx.Engine.Snapshot(); snap.LastDispatch != nil {
		lines = append(lines, "", mutedStyle.Render(fmt.Sprintf("Attempt %d · %s", snap.LastDispatch.Attempt, snap.LastDispatch.FinishedAt.Format("15:04:05"))))
	}
	lines = append(lines, "", joinHints(keyHint("enter", "start a new request", true)))
	return strings.Join(lines, "\n")
}
