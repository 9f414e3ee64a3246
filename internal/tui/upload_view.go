package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/countersign/internal/workflow"
)

const (
	uploadPath = iota
	uploadName
	uploadDescription
)

// uploadView attaches a file and edits the document's name and description.
type uploadView struct {
	ctx     *viewContext
	inputs  []textinput.Model
	focus   int
	loading bool
	err     string
	// sessionID detects StartOver so the typed path is cleared with it.
	sessionID string
}

func newUploadView() *uploadView {
	path := textinput.New()
	path.Placeholder = "path/to/lease.pdf"
	path.Prompt = "File        "
	name := textinput.New()
	name.Placeholder = "Document name"
	name.Prompt = "Name        "
	name.CharLimit = 120
	desc := textinput.New()
	desc.Placeholder = "Optional description"
	desc.Prompt = "Description "
	desc.CharLimit = 280
	return &uploadView{inputs: []textinput.Model{path, name, desc}}
}

func (v *uploadView) Name() string        { return "Upload" }
func (v *uploadView) Step() workflow.Step { return workflow.StepUpload }

func (v *uploadView) Init(ctx *viewContext) tea.Cmd {
	v.ctx = ctx
	v.sessionID = ctx.session().ID
	v.syncFromSession()
	if ctx.session().Step == workflow.StepUpload {
		return v.setFocus(uploadPath)
	}
	return nil
}

func (v *uploadView) CanAdvance(s workflow.Session) bool {
	return s.CanProceedFromUpload()
}

// Captures claims every key while an input is focused; the first step has
// no backward navigation to protect.
func (v *uploadView) Captures(tea.KeyMsg) bool {
	return v.focus >= 0
}

func (v *uploadView) Update(msg tea.Msg) (stepView, tea.Cmd) {
	switch msg := msg.(type) {
	case documentLoadedMsg:
		v.loading = false
		if msg.err != nil {
			v.err = msg.err.Error()
			v.ctx.Logbook.Warn("Upload failed: %v", msg.err)
			return v, nil
		}
		v.err = ""
		if v.ctx.apply(workflow.AttachDocument{Document: msg.doc}, fmt.Sprintf("Document · attached %s", msg.doc.Name)) {
			v.syncFromSession()
		}
		return v, nil
	case stepEnteredMsg:
		if msg.step == workflow.StepUpload {
			if id := v.ctx.session().ID; id != v.sessionID {
				v.sessionID = id
				v.inputs[uploadPath].SetValue("")
				v.err = ""
			}
			v.syncFromSession()
			return v, v.setFocus(uploadPath)
		}
		v.blurAll()
		return v, nil
	case tea.KeyMsg:
		return v, v.handleKey(msg)
	}
	return v, nil
}

func (v *uploadView) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "down":
		return v.setFocus((v.focus + 1) % len(v.inputs))
	case "shift+tab", "up":
		return v.setFocus((v.focus + len(v.inputs) - 1) % len(v.inputs))
	case "ctrl+x":
		if v.ctx.apply(workflow.ClearDocument{}, "Document · cleared") {
			v.syncFromSession()
		}
		return nil
	case "enter":
		return v.submit()
	}
	if v.focus < 0 {
		return nil
	}
	var cmd tea.Cmd
	v.inputs[v.focus], cmd = v.inputs[v.focus].Update(msg)
	return cmd
}

func (v *uploadView) submit() tea.Cmd {
	switch v.focus {
	case uploadPath:
		path := strings.TrimSpace(v.inputs[uploadPath].Value())
		if path == "" || v.loading {
			return nil
		}
		v.loading = true
		v.err = ""
		in := v.ctx.Intake
		return func() tea.Msg {
			doc, err := in.FromFile(context.Background(), path)
			return documentLoadedMsg{doc: doc, err: err}
		}
	case uploadName:
		name := v.inputs[uploadName].Value()
		if v.ctx.apply(workflow.RenameDocument{Name: name}, fmt.Sprintf("Document · renamed to %s", strings.TrimSpace(name))) {
			v.err = ""
		} else if v.ctx.session().Document != nil && strings.TrimSpace(name) == "" {
			v.err = "Document name cannot be empty"
		}
		v.syncFromSession()
		return v.setFocus(uploadDescription)
	case uploadDescription:
		v.ctx.apply(workflow.DescribeDocument{Description: v.inputs[uploadDescription].Value()}, "Document · description updated")
		v.syncFromSession()
	}
	return nil
}

func (v *uploadView) syncFromSession() {
	doc := v.ctx.session().Document
	if doc == nil {
		v.inputs[uploadName].SetValue("")
		v.inputs[uploadDescription].SetValue("")
		return
	}
	v.inputs[uploadName].SetValue(doc.Name)
	v.inputs[uploadDescription].SetValue(doc.Description)
}

func (v *uploadView) setFocus(idx int) tea.Cmd {
	v.blurAll()
	v.focus = idx
	return v.inputs[idx].Focus()
}

func (v *uploadView) blurAll() {
	for i := range v.inputs {
		v.inputs[i].Blur()
	}
}

func (v *uploadView) View(width int) string {
	s := v.ctx.session()
	lines := []string{headingStyle.Render("Upload the document to be signed"), ""}
	for i := range v.inputs {
		v.inputs[i].Width = max(10, width-len(v.inputs[i].Prompt)-2)
		lines = append(lines, v.inputs[i].View())
	}
	lines = append(lines, "")
	switch {
	case v.loading:
		lines = append(lines, warnStyle.Render("Reading file…"))
	case s.Document != nil:
		doc := s.Document
		pages := "unknown page count"
		if doc.PageCount > 0 {
			pages = fmt.Sprintf("%d page(s)", doc.PageCount)
		}
		lines = append(lines,
			okStyle.Render("✓ "+doc.Name),
			mutedStyle.Render(truncate(fmt.Sprintf("%s · %s · %s", doc.ContentType, humanBytes(doc.SizeBytes), pages), width)),
			mutedStyle.Render(truncate(doc.FileRef, width)),
		)
	default:
		lines = append(lines, mutedStyle.Render("No document attached"))
	}
	if v.err != "" {
		lines = append(lines, errorStyle.Render(truncate(v.err, width)))
	}
	lines = append(lines, "", joinHints(
		keyHint("enter", "load / save", true),
		keyHint("tab", "next input", true),
		keyHint("ctrl+x", "remove document", s.Document != nil),
	))
	return strings.Join(lines, "\n")
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
