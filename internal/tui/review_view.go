package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/countersign/internal/suggest"
	"github.com/kingrea/countersign/internal/workflow"
)

// reviewView shows the summary, edits the message and starts the send.
type reviewView struct {
	ctx     *viewContext
	message textarea.Model
	spinner spinner.Model

	// suggesting is the loading flag for the message suggestion; token
	// identifies the newest request and baseline is the message text when
	// it was issued, so a late reply never overwrites typing.
	suggesting bool
	token      int
	baseline   string
	suggestErr string
	spinning   bool
	sessionID  string
}

func newReviewView() *reviewView {
	ta := textarea.New()
	ta.Placeholder = "Message to signers (optional)"
	ta.ShowLineNumbers = false
	ta.SetHeight(4)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &reviewView{message: ta, spinner: sp}
}

func (v *reviewView) Name() string        { return "Review" }
func (v *reviewView) Step() workflow.Step { return workflow.StepReview }

func (v *reviewView) Init(ctx *viewContext) tea.Cmd {
	v.ctx = ctx
	v.sessionID = ctx.session().ID
	v.message.SetValue(ctx.session().Message)
	return nil
}

func (v *reviewView) CanAdvance(s workflow.Session) bool {
	return s.CanSend()
}

func (v *reviewView) Captures(tea.KeyMsg) bool {
	return v.message.Focused()
}

func (v *reviewView) Update(msg tea.Msg) (stepView, tea.Cmd) {
	switch msg := msg.(type) {
	case stepEnteredMsg:
		if s := v.ctx.session(); s.ID != v.sessionID {
			v.sessionID = s.ID
			v.message.Blur()
			v.message.SetValue(s.Message)
			return v, nil
		}
		if msg.step == workflow.StepReview {
			v.message.SetValue(v.ctx.session().Message)
		} else {
			v.commitMessage()
			v.message.Blur()
		}
		return v, nil
	case tea.WindowSizeMsg:
		v.message.SetWidth(max(20, contentWidth(msg.Width)-2))
		return v, nil
	case suggestionMsg:
		return v, v.handleSuggestion(msg)
	case sendFinishedMsg:
		v.spinning = v.suggesting
		return v, nil
	case spinner.TickMsg:
		if !v.spinning {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd
	case tea.KeyMsg:
		return v, v.handleKey(msg)
	}
	return v, nil
}

func (v *reviewView) handleKey(msg tea.KeyMsg) tea.Cmd {
	s := v.ctx.session()
	if v.message.Focused() {
		if msg.String() == "esc" || msg.String() == "tab" {
			v.message.Blur()
			v.commitMessage()
			return nil
		}
		var cmd tea.Cmd
		v.message, cmd = v.message.Update(msg)
		return cmd
	}
	if s.IsProcessing {
		if msg.String() == "x" {
			if v.ctx.cancel() {
				v.ctx.Logbook.Warn("Send canceled by operator")
			}
		}
		return nil
	}
	switch msg.String() {
	case "m", "tab":
		return v.message.Focus()
	case "g":
		return v.requestSuggestion()
	case "s", "enter":
		return v.ctx.send()
	case "1", "2", "3":
		target := workflow.Step(int(msg.String()[0] - '1'))
		v.commitMessage()
		v.ctx.apply(workflow.SetStep{Target: target}, fmt.Sprintf("Step · back to %s", target.FriendlyName()))
	}
	return nil
}

// commitMessage stores the textarea in the session if it changed.
func (v *reviewView) commitMessage() {
	if v.ctx == nil {
		return
	}
	text := v.message.Value()
	if text != v.ctx.session().Message {
		v.ctx.apply(workflow.SetMessage{Text: text}, "")
	}
}

func (v *reviewView) requestSuggestion() tea.Cmd {
	if v.suggesting || v.ctx.Suggester == nil {
		return nil
	}
	v.token++
	v.suggesting = true
	v.suggestErr = ""
	v.baseline = v.message.Value()
	token := v.token
	req := suggest.RequestFromSession(v.ctx.session())
	sg := v.ctx.Suggester
	v.ctx.Logbook.Info("Message · suggestion requested")
	return tea.Batch(v.startSpinner(), func() tea.Msg {
		text, err := sg.Suggest(context.Background(), req)
		return suggestionMsg{token: token, text: text, err: err}
	})
}

func (v *reviewView) handleSuggestion(msg suggestionMsg) tea.Cmd {
	if msg.token != v.token {
		return nil
	}
	v.suggesting = false
	v.spinning = v.ctx.session().IsProcessing
	if msg.err != nil {
		v.suggestErr = msg.err.Error()
		v.ctx.Logbook.Warn("Message · suggestion failed: %v", msg.err)
		return nil
	}
	if v.message.Value() != v.baseline {
		v.ctx.Logbook.Info("Message · suggestion discarded, message was edited")
		return nil
	}
	v.message.SetValue(msg.text)
	v.commitMessage()
	v.ctx.Logbook.Info("Message · suggestion applied")
	return nil
}

func (v *reviewView) startSpinner() tea.Cmd {
	if v.spinning {
		return nil
	}
	v.spinning = true
	return v.spinner.Tick
}

func (v *reviewView) View(width int) string {
	s := v.ctx.session()
	sum := workflow.Summarize(s)
	lines := []string{headingStyle.Render(truncate(sum.DocumentName, width))}
	if s.Document != nil && s.Document.Description != "" {
		lines = append(lines, mutedStyle.Render(truncate(s.Document.Description, width)))
	}
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d page(s) · %d field(s) · %d required", sum.Pages, sum.TotalFields, sum.RequiredFields)), "")

	for _, row := range sum.Signers {
		sg := row.Signer
		line := fmt.Sprintf("%s %s <%s> · %s · %d field(s), %d signature/initial",
			signerStyle(sg.Color).Render("●"), sg.Name, sg.Email, sg.Role.FriendlyName(), row.Fields, row.Marks)
		if row.Fields == 0 {
			line += " " + errorStyle.Render("no fields")
		}
		lines = append(lines, line)
	}
	if len(sum.PerPage) > 0 {
		var pages []string
		for _, p := range sum.PerPage {
			pages = append(pages, fmt.Sprintf("p%d: %d", p.Page, p.Fields))
		}
		lines = append(lines, mutedStyle.Render(truncate("Per page · "+strings.Join(pages, "  "), width)))
	}
	for _, b := range sum.Blockers {
		lines = append(lines, warnStyle.Render("⚠ "+b))
	}

	lines = append(lines, "", v.message.View())
	switch {
	case v.suggesting:
		lines = append(lines, warnStyle.Render(v.spinner.View()+" Drafting a message…"))
	case v.suggestErr != "":
		lines = append(lines, errorStyle.Render(truncate("Suggestion failed: "+v.suggestErr, width)))
	}

	switch {
	case s.IsProcessing:
		lines = append(lines, "", warnStyle.Render(v.spinner.View()+" Sending…"))
	case s.LastError != "":
		lines = append(lines, "", errorStyle.Render(truncate("✗ "+s.LastError, width)))
	}

	editing := v.message.Focused()
	idle := !s.IsProcessing && !editing
	lines = append(lines, "", joinHints(
		keyHint("s", "send", idle && s.CanSend()),
		keyHint("x", "cancel send", s.IsProcessing),
		keyHint("m", "edit message", idle),
		keyHint("g", "suggest message", idle && !v.suggesting),
		keyHint("1/2/3", "jump back", idle),
	))
	return strings.Join(lines, "\n")
}
