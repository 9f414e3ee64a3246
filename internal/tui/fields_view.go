package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/placement"
	"github.com/kingrea/countersign/internal/workflow"
)

// Canvas geometry inside the view's content area: two header lines and the
// canvas top border sit above the first canvas row.
const (
	canvasTop     = 3
	canvasLeft    = 1
	minCanvasRows = 8
	maxCanvasRows = 30
	// pageAspect is page height over width for A4/Letter, halved because a
	// terminal cell is roughly twice as tall as it is wide.
	pageAspect = 1.414 / 2
)

// fieldsView is the page canvas. Pointer drags and the keyboard both end
// up as Drop or UpdateField operations on the session.
type fieldsView struct {
	ctx *viewContext

	page      int
	signerIdx int
	typeIdx   int
	// selected is a field index or -1. It is view state only. pinned is
	// the selected field as this view last wrote or saw it; a session field
	// at that index with a different value means the selection is gone.
	selected int
	pinned   field.Field
	cursorX  int
	cursorY  int

	canvas   placement.Rect
	height   int
	drag     workflow.DropPayload
	dragFrom [2]int
	docKey   string
	status   string
}

func newFieldsView() *fieldsView {
	v := &fieldsView{page: 1, selected: -1}
	v.layout(100, 40)
	return v
}

func (v *fieldsView) Name() string        { return "Fields" }
func (v *fieldsView) Step() workflow.Step { return workflow.StepFields }

func (v *fieldsView) Init(ctx *viewContext) tea.Cmd {
	v.ctx = ctx
	v.docKey = documentKey(ctx.session().Document)
	return nil
}

func (v *fieldsView) CanAdvance(s workflow.Session) bool {
	return s.CanProceedFromFields()
}

func (v *fieldsView) Captures(key tea.KeyMsg) bool {
	return key.String() == "esc" && (v.selected >= 0 || v.drag != nil)
}

// layout sizes the canvas to the available width while keeping the page
// proportions and fitting the terminal height.
func (v *fieldsView) layout(totalWidth, totalHeight int) {
	width := contentWidth(totalWidth) - 2
	rows := int(float64(width) * pageAspect)
	limit := max(minCanvasRows, min(maxCanvasRows, totalHeight-18))
	if rows > limit {
		rows = limit
		width = int(float64(rows) / pageAspect)
	}
	v.height = totalHeight
	v.canvas = placement.Rect{
		Left:   canvasLeft,
		Top:    canvasTop,
		Width:  float64(max(10, width)),
		Height: float64(max(minCanvasRows, rows)),
	}
	v.cursorX = min(v.cursorX, v.cols()-1)
	v.cursorY = min(v.cursorY, v.rows()-1)
}

func (v *fieldsView) cols() int { return int(v.canvas.Width) }
func (v *fieldsView) rows() int { return int(v.canvas.Height) }

func (v *fieldsView) Update(msg tea.Msg) (stepView, tea.Cmd) {
	v.reconcile()
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.layout(msg.Width, msg.Height)
	case stepEnteredMsg:
		v.drag = nil
		if msg.step == workflow.StepFields {
			v.status = ""
		}
	case tea.MouseMsg:
		v.handleMouse(msg)
	case tea.KeyMsg:
		v.handleKey(msg)
	}
	return v, nil
}

// reconcile drops view state the session no longer supports: a selection
// after its field vanished or the document changed, a page past the end,
// a signer index past the list.
func (v *fieldsView) reconcile() {
	if v.ctx == nil {
		return
	}
	s := v.ctx.session()
	if key := documentKey(s.Document); key != v.docKey {
		v.docKey = key
		v.clearSelection()
		v.page = 1
		v.drag = nil
	}
	if v.selected >= 0 {
		if f, ok := s.Fields.At(v.selected); !ok || f != v.pinned {
			v.relocate(s.Fields)
		}
	}
	if pages := s.Document.Pages(); v.page > pages {
		v.page = pages
	}
	if v.page < 1 {
		v.page = 1
	}
	if n := s.Signers.Len(); v.signerIdx >= n {
		v.signerIdx = max(0, n-1)
	}
}

func (v *fieldsView) handleMouse(msg tea.MouseMsg) {
	col := msg.X - canvasLeft
	row := msg.Y - canvasTop
	inside := col >= 0 && col < v.cols() && row >= 0 && row < v.rows()
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || !inside {
			return
		}
		v.cursorX, v.cursorY = col, row
		if idx := v.hit(col, row); idx >= 0 {
			v.selectField(idx)
			v.drag = workflow.Move{Index: idx}
			v.dragFrom = [2]int{col, row}
			return
		}
		payload, ok := v.placePayload()
		if !ok {
			return
		}
		v.drag = payload
		v.dragFrom = [2]int{col, row}
	case tea.MouseActionRelease:
		payload := v.drag
		v.drag = nil
		if payload == nil || !inside {
			return
		}
		if payload.Kind() == workflow.DropMove && v.dragFrom == [2]int{col, row} {
			return
		}
		v.drop(payload, msg.X, msg.Y)
	}
}

func (v *fieldsView) handleKey(msg tea.KeyMsg) {
	s := v.ctx.session()
	switch msg.String() {
	case "tab":
		if n := s.Signers.Len(); n > 0 {
			v.signerIdx = (v.signerIdx + 1) % n
		}
	case "shift+tab":
		if n := s.Signers.Len(); n > 0 {
			v.signerIdx = (v.signerIdx + n - 1) % n
		}
	case "t":
		v.typeIdx = (v.typeIdx + 1) % len(field.Types)
	case "T":
		v.typeIdx = (v.typeIdx + len(field.Types) - 1) % len(field.Types)
	case "pgdown", "]":
		if v.page < s.Document.Pages() {
			v.page++
			v.clearSelection()
		}
	case "pgup", "[":
		if v.page > 1 {
			v.page--
			v.clearSelection()
		}
	case "esc":
		v.clearSelection()
		v.drag = nil
	case "up", "k":
		v.nudge(0, -1)
	case "down", "j":
		v.nudge(0, 1)
	case "left", "h":
		v.nudge(-1, 0)
	case "right", "l":
		v.nudge(1, 0)
	case "enter", " ":
		if idx := v.hit(v.cursorX, v.cursorY); idx >= 0 {
			v.selectField(idx)
			return
		}
		if payload, ok := v.placePayload(); ok {
			v.drop(payload, v.cursorX+canvasLeft, v.cursorY+canvasTop)
		}
	case "d", "delete", "backspace":
		v.removeSelected()
	case "r":
		v.toggleRequired()
	case "+", "=":
		v.resize(2)
	case "-":
		v.resize(-2)
	}
}

// placePayload builds a Place drop for the chosen signer, type and page.
func (v *fieldsView) placePayload() (workflow.DropPayload, bool) {
	s := v.ctx.session()
	if s.Document == nil {
		v.status = "Attach a document first"
		return nil, false
	}
	sg, ok := s.Signers.At(v.signerIdx)
	if !ok {
		v.status = "Add a signer first"
		return nil, false
	}
	return workflow.Place{Type: field.Types[v.typeIdx], Signer: sg.Email, Page: v.page}, true
}

// drop hands a finished drag to the session. x and y are content
// coordinates; the canvas rectangle converts them to page percentages.
func (v *fieldsView) drop(payload workflow.DropPayload, x, y int) {
	before := v.ctx.session().Fields.Len()
	op := workflow.Drop{
		Payload: payload,
		At:      placement.Point{X: float64(x), Y: float64(y)},
		Within:  v.canvas,
	}
	var describe string
	switch p := payload.(type) {
	case workflow.Place:
		describe = fmt.Sprintf("Fields · placed %s for %s on page %d", p.Type.Label(), p.Signer, p.Page)
	case workflow.Move:
		describe = fmt.Sprintf("Fields · moved field %d", p.Index+1)
	}
	if !v.ctx.apply(op, describe) {
		v.status = "That field could not be placed"
		return
	}
	v.status = ""
	if p, ok := payload.(workflow.Move); ok {
		v.selectField(p.Index)
		return
	}
	if after := v.ctx.session().Fields.Len(); after > before {
		v.selectField(after - 1)
	}
}

func (v *fieldsView) selectField(idx int) {
	f, ok := v.ctx.session().Fields.At(idx)
	if !ok {
		v.clearSelection()
		return
	}
	v.selected = idx
	v.pinned = f
}

func (v *fieldsView) clearSelection() {
	v.selected = -1
	v.pinned = field.Field{}
}

// relocate follows the pinned field after other fields were removed ahead
// of it, and clears the selection when the field itself is gone.
func (v *fieldsView) relocate(fields field.Registry) {
	for i, f := range fields.All() {
		if f == v.pinned {
			v.selected = i
			if _, moving := v.drag.(workflow.Move); moving {
				v.drag = workflow.Move{Index: i}
			}
			return
		}
	}
	v.clearSelection()
	if _, moving := v.drag.(workflow.Move); moving {
		v.drag = nil
	}
}

// nudge moves the selection one cell, or the keyboard cursor when nothing
// is selected.
func (v *fieldsView) nudge(dx, dy int) {
	if v.selected < 0 {
		v.cursorX = clampInt(v.cursorX+dx, 0, v.cols()-1)
		v.cursorY = clampInt(v.cursorY+dy, 0, v.rows()-1)
		return
	}
	f, ok := v.ctx.session().Fields.At(v.selected)
	if !ok {
		v.clearSelection()
		return
	}
	x := f.X + float64(dx)*100/v.canvas.Width
	y := f.Y + float64(dy)*100/v.canvas.Height
	v.ctx.apply(workflow.UpdateField{Index: v.selected, Patch: field.Patch{X: &x, Y: &y}}, "")
	v.selectField(v.selected)
}

func (v *fieldsView) resize(delta float64) {
	f, ok := v.ctx.session().Fields.At(v.selected)
	if !ok {
		return
	}
	w := f.Width + delta
	v.ctx.apply(workflow.UpdateField{Index: v.selected, Patch: field.Patch{Width: &w}}, "")
	v.selectField(v.selected)
}

func (v *fieldsView) removeSelected() {
	f, ok := v.ctx.session().Fields.At(v.selected)
	if !ok {
		return
	}
	if v.ctx.apply(workflow.RemoveField{Index: v.selected}, fmt.Sprintf("Fields · removed %s for %s", f.Type.Label(), f.Signer)) {
		v.clearSelection()
	}
}

func (v *fieldsView) toggleRequired() {
	f, ok := v.ctx.session().Fields.At(v.selected)
	if !ok {
		return
	}
	required := !f.Required
	v.ctx.apply(workflow.UpdateField{Index: v.selected, Patch: field.Patch{Required: &required}}, "")
	v.selectField(v.selected)
}

// cellRect maps a field to canvas cells: left, top, width, height.
func (v *fieldsView) cellRect(f field.Field) (int, int, int, int) {
	cols, rows := v.canvas.Width, v.canvas.Height
	left := int(math.Round(f.X * cols / 100))
	top := int(math.Round(f.Y * rows / 100))
	w := max(1, int(math.Round(f.Width*cols/100)))
	h := max(1, int(math.Round(f.Height*rows/100)))
	return left, top, w, h
}

// hit returns the topmost field on the current page covering the cell.
func (v *fieldsView) hit(col, row int) int {
	s := v.ctx.session()
	indexes := s.Fields.OnPage(v.page)
	for i := len(indexes) - 1; i >= 0; i-- {
		f, _ := s.Fields.At(indexes[i])
		left, top, w, h := v.cellRect(f)
		if col >= left && col < left+w && row >= top && row < top+h {
			return indexes[i]
		}
	}
	return -1
}

type canvasCell struct {
	r     rune
	style lipgloss.Style
}

func (v *fieldsView) View(width int) string {
	v.reconcile()
	s := v.ctx.session()
	if s.Document == nil {
		return mutedStyle.Render("Attach a document before placing fields.")
	}
	header := fmt.Sprintf("Page %d of %d", v.page, s.Document.Pages())
	if sg, ok := s.Signers.At(v.signerIdx); ok {
		header += " · " + signerStyle(sg.Color).Render("●") + " " + truncate(sg.Name, 24)
	} else {
		header += " · no signers"
	}
	header += " · " + field.Types[v.typeIdx].Label()

	counts := s.Fields.CountBySigner()
	var legend []string
	used := 0
	for _, sg := range s.Signers.All() {
		plain := fmt.Sprintf("■ %s %d", firstWord(sg.Name), counts[sg.Email])
		if used+len([]rune(plain))+2 > width-2 {
			legend = append(legend, "…")
			break
		}
		used += len([]rune(plain)) + 2
		legend = append(legend, fmt.Sprintf("%s %s %d", signerStyle(sg.Color).Render("■"), firstWord(sg.Name), counts[sg.Email]))
	}
	legendLine := mutedStyle.Render("No signers")
	if len(legend) > 0 {
		legendLine = strings.Join(legend, "  ")
	}

	lines := []string{header, legendLine, v.renderCanvas(s)}
	lines = append(lines, v.renderSelection(s, width))
	if v.status != "" {
		lines = append(lines, warnStyle.Render(truncate(v.status, width)))
	}
	hasSel := v.selected >= 0
	lines = append(lines, joinHints(
		keyHint("click/enter", "place", s.Signers.Len() > 0),
		keyHint("drag", "move", s.Fields.Len() > 0),
		keyHint("tab", "signer", s.Signers.Len() > 1),
		keyHint("t", "type", true),
		keyHint("pgup/pgdn", "page", s.Document.Pages() > 1),
	), joinHints(
		keyHint("arrows", "nudge", true),
		keyHint("+/-", "width", hasSel),
		keyHint("r", "required", hasSel),
		keyHint("d", "delete", hasSel),
	))
	return strings.Join(lines, "\n")
}

func (v *fieldsView) renderCanvas(s workflow.Session) string {
	cols, rows := v.cols(), v.rows()
	blank := mutedStyle
	grid := make([][]canvasCell, rows)
	for y := range grid {
		grid[y] = make([]canvasCell, cols)
		for x := range grid[y] {
			r := ' '
			if x%6 == 0 && y%3 == 0 {
				r = '·'
			}
			grid[y][x] = canvasCell{r: r, style: blank}
		}
	}
	for _, idx := range s.Fields.OnPage(v.page) {
		f, _ := s.Fields.At(idx)
		color := "#888888"
		if sg, ok := s.Signers.At(s.Signers.IndexOf(f.Signer)); ok {
			color = sg.Color
		}
		style := lipgloss.NewStyle().Background(lipgloss.Color(color)).Foreground(lipgloss.Color("#111111"))
		if idx == v.selected {
			style = style.Bold(true).Underline(true)
		}
		label := []rune(f.Type.Label())
		if f.Required {
			label = append(label, '*')
		}
		left, top, w, h := v.cellRect(f)
		for dy := 0; dy < h; dy++ {
			for dx := 0; dx < w; dx++ {
				x, y := left+dx, top+dy
				if x < 0 || x >= cols || y < 0 || y >= rows {
					continue
				}
				r := ' '
				if dy == 0 && dx < len(label) {
					r = label[dx]
				}
				grid[y][x] = canvasCell{r: r, style: style}
			}
		}
	}
	if v.selected < 0 && v.cursorY < rows && v.cursorX < cols {
		c := grid[v.cursorY][v.cursorX]
		if c.r == ' ' || c.r == '·' {
			c.r = '+'
		}
		grid[v.cursorY][v.cursorX] = canvasCell{r: c.r, style: c.style.Reverse(true)}
	}
	out := make([]string, rows)
	for y, row := range grid {
		var b strings.Builder
		for _, c := range row {
			b.WriteString(c.style.Render(string(c.r)))
		}
		out[y] = b.String()
	}
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#666666")).
		Render(strings.Join(out, "\n"))
}

func (v *fieldsView) renderSelection(s workflow.Session, width int) string {
	f, ok := s.Fields.At(v.selected)
	if !ok {
		return mutedStyle.Render("No field selected")
	}
	owner := f.Signer
	if sg, ok := s.Signers.At(s.Signers.IndexOf(f.Signer)); ok {
		owner = sg.Name
	}
	required := "optional"
	if f.Required {
		required = "required"
	}
	return truncate(fmt.Sprintf("▸ %s for %s · x %.0f%% y %.0f%% · %.0f×%.0f · %s",
		f.Type.Label(), owner, f.X, f.Y, f.Width, f.Height, required), width)
}

func documentKey(doc *workflow.Document) string {
	if doc == nil {
		return ""
	}
	return doc.FileRef + "|" + doc.PreviewHandle
}

func firstWord(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return name
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
