// Package field holds the typed placeholders placed on a document.
//
// Like signer.Registry, a field Registry is a value and every mutation
// returns a fresh copy. The registry never checks that a field's signer
// still exists; the workflow layer owns that relationship.
package field

import (
	"encoding/json"
	"strings"

	"github.com/kingrea/countersign/internal/placement"
)

// Type is the closed set of field kinds.
type Type string

const (
	TypeSignature Type = "SIGNATURE"
	TypeInitials  Type = "INITIALS"
	TypeDate      Type = "DATE"
	TypeName      Type = "NAME"
	TypeEmail     Type = "EMAIL"
	TypeCompany   Type = "COMPANY"
	TypeTitle     Type = "TITLE"
	TypeTextbox   Type = "TEXTBOX"
	TypeCheckbox  Type = "CHECKBOX"
	TypeDropdown  Type = "DROPDOWN"
	TypeRadio     Type = "RADIO"
)

// Types lists every field type in palette order.
var Types = []Type{
	TypeSignature,
	TypeInitials,
	TypeDate,
	TypeName,
	TypeEmail,
	TypeCompany,
	TypeTitle,
	TypeTextbox,
	TypeCheckbox,
	TypeDropdown,
	TypeRadio,
}

var defaultSizes = map[Type]placement.Size{
	TypeSignature: {Width: 20, Height: 6},
	TypeInitials:  {Width: 10, Height: 5},
	TypeDate:      {Width: 15, Height: 4},
	TypeName:      {Width: 20, Height: 4},
	TypeEmail:     {Width: 20, Height: 4},
	TypeCompany:   {Width: 20, Height: 4},
	TypeTitle:     {Width: 15, Height: 4},
	TypeTextbox:   {Width: 20, Height: 8},
	TypeCheckbox:  {Width: 3, Height: 3},
	TypeDropdown:  {Width: 15, Height: 4},
	TypeRadio:     {Width: 3, Height: 3},
}

var labels = map[Type]string{
	TypeSignature: "Signature",
	TypeInitials:  "Initials",
	TypeDate:      "Date Signed",
	TypeName:      "Full Name",
	TypeEmail:     "Email",
	TypeCompany:   "Company",
	TypeTitle:     "Title",
	TypeTextbox:   "Text",
	TypeCheckbox:  "Checkbox",
	TypeDropdown:  "Dropdown",
	TypeRadio:     "Radio",
}

// minSize is the smallest width/height a patch can shrink a field to.
const minSize = 1.0

// Valid reports whether t is a known field type.
func (t Type) Valid() bool {
	_, ok := defaultSizes[t]
	return ok
}

// Label is the human-readable name of the type.
func (t Type) Label() string {
	if label, ok := labels[t]; ok {
		return label
	}
	return string(t)
}

// IsMark reports whether the type captures a signature or initials.
func (t Type) IsMark() bool {
	return t == TypeSignature || t == TypeInitials
}

// DefaultSize returns the size a newly placed field of this type gets.
func (t Type) DefaultSize() placement.Size {
	return defaultSizes[t]
}

// ParseType accepts type tags case-insensitively.
func ParseType(value string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(value)))
	return t, t.Valid()
}

// Field is a positioned placeholder bound to one signer by email.
type Field struct {
	Signer   string  `json:"signer"`
	Type     Type    `json:"type"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Required bool    `json:"required"`
}

// Contains reports whether the percent point (x, y) lies on the field.
func (f Field) Contains(x, y float64) bool {
	return x >= f.X && x < f.X+f.Width && y >= f.Y && y < f.Y+f.Height
}

// Patch changes position, size or the required flag. Type and signer are
// fixed at creation.
type Patch struct {
	X        *float64
	Y        *float64
	Width    *float64
	Height   *float64
	Required *bool
}

// Registry is the ordered list of placed fields.
type Registry struct {
	fields []Field
}

// NewRegistry rebuilds a registry from stored fields.
func NewRegistry(fields ...Field) Registry {
	return Registry{fields: cloneFields(fields)}
}

// Len returns the number of fields.
func (r Registry) Len() int { return len(r.fields) }

// All returns a copy of the fields in placement order.
func (r Registry) All() []Field { return cloneFields(r.fields) }

// At returns the field at index.
func (r Registry) At(index int) (Field, bool) {
	if index < 0 || index >= len(r.fields) {
		return Field{}, false
	}
	return r.fields[index], true
}

// Add places a new required field of type t for signerEmail on page. The
// position is clamped and the size comes from the type's default.
func (r Registry) Add(signerEmail string, t Type, page int, x, y float64) (Registry, bool) {
	if strings.TrimSpace(signerEmail) == "" || !t.Valid() || page < 1 {
		return r, false
	}
	cx, cy := placement.Clamp(x, y)
	size := t.DefaultSize()
	f := Field{
		Signer:   signerEmail,
		Type:     t,
		Page:     page,
		X:        cx,
		Y:        cy,
		Width:    size.Width,
		Height:   size.Height,
		Required: true,
	}
	next := make([]Field, len(r.fields), len(r.fields)+1)
	copy(next, r.fields)
	return Registry{fields: append(next, f)}, true
}

// Update applies patch to the field at index, clamping any position.
func (r Registry) Update(index int, patch Patch) (Registry, bool) {
	current, ok := r.At(index)
	if !ok {
		return r, false
	}
	x, y := current.X, current.Y
	if patch.X != nil {
		x = *patch.X
	}
	if patch.Y != nil {
		y = *patch.Y
	}
	current.X, current.Y = placement.Clamp(x, y)
	if patch.Width != nil {
		current.Width = placement.ClampSize(*patch.Width, minSize)
	}
	if patch.Height != nil {
		current.Height = placement.ClampSize(*patch.Height, minSize)
	}
	if patch.Required != nil {
		current.Required = *patch.Required
	}
	next := cloneFields(r.fields)
	next[index] = current
	return Registry{fields: next}, true
}

// Remove drops the field at index.
func (r Registry) Remove(index int) (Registry, bool) {
	if index < 0 || index >= len(r.fields) {
		return r, false
	}
	next := make([]Field, 0, len(r.fields)-1)
	next = append(next, r.fields[:index]...)
	next = append(next, r.fields[index+1:]...)
	return Registry{fields: next}, true
}

// RemoveBySigner drops every field bound to email and reports how many went.
func (r Registry) RemoveBySigner(email string) (Registry, int) {
	next := make([]Field, 0, len(r.fields))
	for _, f := range r.fields {
		if f.Signer != email {
			next = append(next, f)
		}
	}
	removed := len(r.fields) - len(next)
	if removed == 0 {
		return r, 0
	}
	return Registry{fields: next}, removed
}

// Rebind points every field of oldEmail at newEmail. Used when a signer's
// email is edited; the binding itself stays one field to one signer.
func (r Registry) Rebind(oldEmail, newEmail string) Registry {
	if oldEmail == newEmail {
		return r
	}
	next := cloneFields(r.fields)
	for i := range next {
		if next[i].Signer == oldEmail {
			next[i].Signer = newEmail
		}
	}
	return Registry{fields: next}
}

// FieldAt returns the index of the topmost field on page containing (x, y),
// or -1. Later fields sit on top of earlier ones.
func (r Registry) FieldAt(page int, x, y float64) int {
	for i := len(r.fields) - 1; i >= 0; i-- {
		f := r.fields[i]
		if f.Page == page && f.Contains(x, y) {
			return i
		}
	}
	return -1
}

// OnPage returns the indexes of fields on page, in placement order.
func (r Registry) OnPage(page int) []int {
	var out []int
	for i, f := range r.fields {
		if f.Page == page {
			out = append(out, i)
		}
	}
	return out
}

// ForSigner returns the indexes of fields bound to email.
func (r Registry) ForSigner(email string) []int {
	var out []int
	for i, f := range r.fields {
		if f.Signer == email {
			out = append(out, i)
		}
	}
	return out
}

// CountBySigner counts fields per signer email.
func (r Registry) CountBySigner() map[string]int {
	out := make(map[string]int)
	for _, f := range r.fields {
		out[f.Signer]++
	}
	return out
}

// MarksBySigner counts signature and initials fields per signer email.
func (r Registry) MarksBySigner() map[string]int {
	out := make(map[string]int)
	for _, f := range r.fields {
		if f.Type.IsMark() {
			out[f.Signer]++
		}
	}
	return out
}

// CountByPage counts fields per page.
func (r Registry) CountByPage() map[int]int {
	out := make(map[int]int)
	for _, f := range r.fields {
		out[f.Page]++
	}
	return out
}

// RequiredCount counts fields flagged required.
func (r Registry) RequiredCount() int {
	n := 0
	for _, f := range r.fields {
		if f.Required {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the registry as a plain array.
func (r Registry) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.fields)
}

// UnmarshalJSON decodes a plain array.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.fields = fields
	return nil
}

func cloneFields(values []Field) []Field {
	if len(values) == 0 {
		return nil
	}
	out := make([]Field, len(values))
	copy(out, values)
	return out
}
