package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/countersign/internal/signer"
	"github.com/kingrea/countersign/internal/workflow"
)

type signersFocus int

const (
	focusCandidates signersFocus = iota
	focusAdded
)

const (
	formName = iota
	formEmail
	formPhone
	formRole
)

// candidateItem implements list.Item for directory entries.
type candidateItem struct {
	candidate signer.Candidate
	added     bool
}

func (i candidateItem) Title() string {
	mark := "○ "
	if i.added {
		mark = "✓ "
	}
	return mark + i.candidate.Name
}

func (i candidateItem) Description() string {
	return fmt.Sprintf("%s · %s", i.candidate.Email, i.candidate.Role.FriendlyName())
}

func (i candidateItem) FilterValue() string {
	return i.candidate.Name + " " + i.candidate.Email
}

// signerForm is the add/edit dialog. editing is -1 when adding.
type signerForm struct {
	inputs  []textinput.Model
	focus   int
	editing int
	err     string
}

// signersView picks signers from the directory and edits the request's
// signer list.
type signersView struct {
	ctx        *viewContext
	candidates []signer.Candidate
	list       list.Model
	focus      signersFocus
	cursor     int
	form       *signerForm
	loadErr    string
	status     string
}

func newSignersView() *signersView {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Directory"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	return &signersView{list: l}
}

func (v *signersView) Name() string        { return "Signers" }
func (v *signersView) Step() workflow.Step { return workflow.StepSigners }

func (v *signersView) Init(ctx *viewContext) tea.Cmd {
	v.ctx = ctx
	return nil
}

func (v *signersView) CanAdvance(s workflow.Session) bool {
	return s.CanProceedFromSigners()
}

func (v *signersView) Captures(tea.KeyMsg) bool {
	return v.form != nil || v.list.FilterState() == list.Filtering
}

func (v *signersView) Update(msg tea.Msg) (stepView, tea.Cmd) {
	switch msg := msg.(type) {
	case candidatesLoadedMsg:
		if msg.err != nil {
			v.loadErr = msg.err.Error()
			v.ctx.Logbook.Warn("Directory unavailable: %v", msg.err)
		} else {
			v.loadErr = ""
			v.candidates = msg.candidates
		}
		v.refreshItems()
		return v, nil
	case stepEnteredMsg:
		v.refreshItems()
		v.form = nil
		return v, nil
	case tea.WindowSizeMsg:
		v.list.SetSize(max(20, contentWidth(msg.Width)/2-2), max(6, msg.Height-18))
		return v, nil
	case tea.KeyMsg:
		if v.form != nil {
			return v, v.updateForm(msg)
		}
		return v, v.handleKey(msg)
	}
	return v, nil
}

func (v *signersView) handleKey(msg tea.KeyMsg) tea.Cmd {
	if v.list.FilterState() != list.Filtering {
		switch msg.String() {
		case "tab":
			if v.focus == focusCandidates {
				v.focus = focusAdded
			} else {
				v.focus = focusCandidates
			}
			return nil
		case "a":
			v.openForm(-1)
			return v.form.inputs[formName].Focus()
		}
	}
	if v.focus == focusAdded {
		return v.handleAddedKey(msg)
	}
	switch msg.String() {
	case "enter", " ":
		if v.list.FilterState() == list.Filtering {
			break
		}
		item, ok := v.list.SelectedItem().(candidateItem)
		if !ok {
			return nil
		}
		v.toggle(item.candidate)
		return nil
	}
	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return cmd
}

func (v *signersView) handleAddedKey(msg tea.KeyMsg) tea.Cmd {
	s := v.ctx.session()
	count := s.Signers.Len()
	switch msg.String() {
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
	case "down", "j":
		if v.cursor < count-1 {
			v.cursor++
		}
	case "e", "enter":
		if count > 0 {
			v.openForm(v.cursor)
			return v.form.inputs[formName].Focus()
		}
	case "x", "delete", "backspace":
		if sg, ok := s.Signers.At(v.cursor); ok {
			removed := len(s.Fields.ForSigner(sg.Email))
			if v.ctx.apply(workflow.RemoveSigner{Index: v.cursor}, fmt.Sprintf("Signers · removed %s and %d field(s)", sg.Email, removed)) {
				v.status = fmt.Sprintf("Removed %s", sg.Name)
				v.refreshItems()
			}
		}
	}
	if n := v.ctx.session().Signers.Len(); v.cursor >= n {
		v.cursor = max(0, n-1)
	}
	return nil
}

func (v *signersView) toggle(c signer.Candidate) {
	present := v.ctx.session().Signers.Contains(c.Email)
	verb := "added"
	if present {
		verb = "removed"
	}
	if v.ctx.apply(workflow.ToggleSigner{Candidate: c}, fmt.Sprintf("Signers · %s %s", verb, c.Email)) {
		v.status = fmt.Sprintf("%s %s", strings.ToUpper(verb[:1])+verb[1:], c.Name)
	}
	v.refreshItems()
}

func (v *signersView) refreshItems() {
	if v.ctx == nil {
		return
	}
	s := v.ctx.session()
	items := make([]list.Item, 0, len(v.candidates))
	for _, c := range v.candidates {
		items = append(items, candidateItem{candidate: c, added: s.Signers.Contains(c.Email)})
	}
	v.list.SetItems(items)
}

func (v *signersView) openForm(editing int) {
	form := &signerForm{editing: editing}
	prompts := []string{"Name  ", "Email ", "Phone ", "Role  "}
	for _, p := range prompts {
		in := textinput.New()
		in.Prompt = p
		in.CharLimit = 120
		form.inputs = append(form.inputs, in)
	}
	form.inputs[formRole].Placeholder = "e.g. tenant, landlord, guarantor"
	if editing >= 0 {
		if sg, ok := v.ctx.session().Signers.At(editing); ok {
			form.inputs[formName].SetValue(sg.Name)
			form.inputs[formEmail].SetValue(sg.Email)
			form.inputs[formPhone].SetValue(sg.Phone)
			form.inputs[formRole].SetValue(sg.Role.FriendlyName())
		}
	}
	v.form = form
}

func (v *signersView) updateForm(msg tea.KeyMsg) tea.Cmd {
	f := v.form
	switch msg.String() {
	case "esc":
		v.form = nil
		return nil
	case "tab", "down":
		return v.focusForm((f.focus + 1) % len(f.inputs))
	case "shift+tab", "up":
		return v.focusForm((f.focus + len(f.inputs) - 1) % len(f.inputs))
	case "enter":
		if f.focus < len(f.inputs)-1 {
			return v.focusForm(f.focus + 1)
		}
		v.submitForm()
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (v *signersView) focusForm(idx int) tea.Cmd {
	for i := range v.form.inputs {
		v.form.inputs[i].Blur()
	}
	v.form.focus = idx
	return v.form.inputs[idx].Focus()
}

func (v *signersView) submitForm() {
	f := v.form
	name := strings.TrimSpace(f.inputs[formName].Value())
	email := strings.TrimSpace(f.inputs[formEmail].Value())
	phone := strings.TrimSpace(f.inputs[formPhone].Value())
	role, err := signer.ParseRole(f.inputs[formRole].Value())
	if err != nil {
		f.err = err.Error()
		return
	}
	if name == "" || email == "" {
		f.err = "Name and email are required"
		return
	}
	if f.editing < 0 {
		c := signer.Candidate{Name: name, Email: email, Phone: phone, Role: role}
		if !v.ctx.apply(workflow.AddSigner{Candidate: c}, fmt.Sprintf("Signers · added %s", email)) {
			f.err = fmt.Sprintf("%s is already on this request", email)
			return
		}
		v.status = fmt.Sprintf("Added %s", name)
	} else {
		patch := signer.Patch{Name: &name, Email: &email, Phone: &phone, Role: &role}
		if !v.ctx.apply(workflow.UpdateSigner{Index: f.editing, Patch: patch}, fmt.Sprintf("Signers · updated %s", email)) {
			f.err = fmt.Sprintf("%s is already used by another signer", email)
			return
		}
		v.status = fmt.Sprintf("Updated %s", name)
	}
	v.form = nil
	v.refreshItems()
}

func (v *signersView) View(width int) string {
	if v.form != nil {
		return v.renderForm(width)
	}
	s := v.ctx.session()
	half := max(20, width/2-2)

	var left string
	switch {
	case v.loadErr != "":
		left = errorStyle.Render(truncate("Directory unavailable: "+v.loadErr, half))
	case len(v.candidates) == 0:
		left = mutedStyle.Render("No directory entries. Press a to add someone.")
	default:
		left = v.list.View()
	}
	if v.focus == focusCandidates {
		left = headingStyle.Render("▸ Pick from directory") + "\n" + left
	} else {
		left = mutedStyle.Render("  Pick from directory") + "\n" + left
	}

	rows := []string{}
	if v.focus == focusAdded {
		rows = append(rows, headingStyle.Render(fmt.Sprintf("▸ On this request (%d)", s.Signers.Len())))
	} else {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  On this request (%d)", s.Signers.Len())))
	}
	counts := s.Fields.CountBySigner()
	for i, sg := range s.Signers.All() {
		cursor := "  "
		if v.focus == focusAdded && i == v.cursor {
			cursor = "▸ "
		}
		line := fmt.Sprintf("%s%s %s", cursor, signerStyle(sg.Color).Render("●"), truncate(sg.Name, half-6))
		rows = append(rows, line, mutedStyle.Render(truncate(fmt.Sprintf("    %s · %s · %d field(s)", sg.Email, sg.Role.FriendlyName(), counts[sg.Email]), half)))
	}
	if s.Signers.Len() == 0 {
		rows = append(rows, mutedStyle.Render("  Nobody yet"))
	}
	right := strings.Join(rows, "\n")

	body := joinColumns(left, right, half)
	lines := []string{body, ""}
	if v.status != "" {
		lines = append(lines, mutedStyle.Render(v.status))
	}
	lines = append(lines, joinHints(
		keyHint("enter", "toggle", v.focus == focusCandidates && len(v.candidates) > 0),
		keyHint("/", "filter", v.focus == focusCandidates),
		keyHint("tab", "switch list", true),
		keyHint("a", "add", true),
		keyHint("e", "edit", v.focus == focusAdded && s.Signers.Len() > 0),
		keyHint("x", "remove", v.focus == focusAdded && s.Signers.Len() > 0),
	))
	return strings.Join(lines, "\n")
}

func (v *signersView) renderForm(width int) string {
	f := v.form
	title := "Add signer"
	if f.editing >= 0 {
		title = "Edit signer"
	}
	lines := []string{headingStyle.Render(title), ""}
	for i := range f.inputs {
		f.inputs[i].Width = max(10, width-10)
		lines = append(lines, f.inputs[i].View())
	}
	lines = append(lines, "")
	if f.err != "" {
		lines = append(lines, errorStyle.Render(truncate(f.err, width)))
	}
	lines = append(lines, joinHints(
		keyHint("enter", "next / save", true),
		keyHint("esc", "cancel", true),
	))
	return strings.Join(lines, "\n")
}
