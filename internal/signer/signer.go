// Package signer holds the ordered list of parties asked to sign a document.
//
// A Registry is a value: every mutation returns a new Registry and leaves the
// receiver untouched, so session snapshots can share it safely.
package signer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Palette is the fixed, ordered set of colors handed out by insertion order.
var Palette = []string{
	"#3B82F6", // blue
	"#10B981", // green
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#06B6D4", // cyan
	"#F97316", // orange
}

// Role describes why a party is signing.
type Role string

const (
	RolePrimaryTenant Role = "PRIMARY_TENANT"
	RoleCoTenant      Role = "CO_TENANT"
	RoleLandlord      Role = "LANDLORD"
	RolePropertyAgent Role = "PROPERTY_AGENT"
	RoleCoSigner      Role = "CO_SIGNER"
	RoleGuarantor     Role = "GUARANTOR"
	RoleWitness       Role = "WITNESS"
	RoleOther         Role = "OTHER"
)

// Roles lists every role in display order.
var Roles = []Role{
	RolePrimaryTenant,
	RoleCoTenant,
	RoleLandlord,
	RolePropertyAgent,
	RoleCoSigner,
	RoleGuarantor,
	RoleWitness,
	RoleOther,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// FriendlyName renders the role for humans ("CO_SIGNER" -> "Co Signer").
func (r Role) FriendlyName() string {
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(string(r)), "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// ParseRole accepts role tags case-insensitively; dashes and spaces are
// treated as underscores. Empty input maps to RoleOther.
func ParseRole(value string) (Role, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return RoleOther, nil
	}
	replacer := strings.NewReplacer("-", "_", " ", "_")
	role := Role(strings.ToUpper(replacer.Replace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("signer: unknown role %q", value)
	}
	return role, nil
}

// ReferenceKind names the directory a signer was picked from.
type ReferenceKind string

const (
	ReferenceNone   ReferenceKind = ""
	ReferenceTenant ReferenceKind = "tenant"
	ReferenceUser   ReferenceKind = "user"
)

// Reference links a signer to a tenant record or an internal user, never both.
type Reference struct {
	Kind ReferenceKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	ID   string        `json:"id,omitempty" yaml:"id,omitempty"`
}

// TenantRef builds a tenant reference.
func TenantRef(id string) Reference { return Reference{Kind: ReferenceTenant, ID: id} }

// UserRef builds an internal-user reference.
func UserRef(id string) Reference { return Reference{Kind: ReferenceUser, ID: id} }

// IsZero reports whether the reference points nowhere.
func (r Reference) IsZero() bool {
	return r.Kind == ReferenceNone || strings.TrimSpace(r.ID) == ""
}

// Signer is one party on the document. Email is the identity key.
type Signer struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	Reference Reference `json:"reference,omitempty"`
	Color     string    `json:"color"`
}

// Candidate carries the attributes supplied when adding a signer.
type Candidate struct {
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Phone     string    `json:"phone,omitempty" yaml:"phone,omitempty"`
	Role      Role      `json:"role,omitempty" yaml:"role,omitempty"`
	Reference Reference `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// Complete reports whether the candidate has the fields Add requires.
func (c Candidate) Complete() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Email) != ""
}

// Patch updates a subset of a signer's mutable attributes. Color is not patchable.
type Patch struct {
	Name      *string
	Email     *string
	Phone     *string
	Role      *Role
	Reference *Reference
}

// Registry is the ordered list of signers.
type Registry struct {
	signers []Signer
}

// NewRegistry rebuilds a registry from stored signers, keeping their colors.
func NewRegistry(signers ...Signer) Registry {
	return Registry{signers: cloneSigners(signers)}
}

// Len returns the number of signers.
func (r Registry) Len() int { return len(r.signers) }

// All returns a copy of the signers in insertion order.
func (r Registry) All() []Signer { return cloneSigners(r.signers) }

// At returns the signer at index.
func (r Registry) At(index int) (Signer, bool) {
	if index < 0 || index >= len(r.signers) {
		return Signer{}, false
	}
	return r.signers[index], true
}

// IndexOf returns the index of the signer with the exact email, or -1.
func (r Registry) IndexOf(email string) int {
	for i, s := range r.signers {
		if s.Email == email {
			return i
		}
	}
	return -1
}

// Contains reports whether a signer with the exact email exists.
func (r Registry) Contains(email string) bool {
	return r.IndexOf(email) >= 0
}

// Add appends a signer colored palette[Len() % len(Palette)]. Candidates
// without a name or email, or with an unknown role, are ignored; an empty
// role means RoleOther. Duplicate emails are the caller's problem: the
// registry does not de-duplicate.
func (r Registry) Add(c Candidate) (Registry, bool) {
	if !c.Complete() {
		return r, false
	}
	role := c.Role
	if role == "" {
		role = RoleOther
	}
	if !role.Valid() {
		return r, false
	}
	s := Signer{
		Email:     strings.TrimSpace(c.Email),
		Name:      strings.TrimSpace(c.Name),
		Phone:     strings.TrimSpace(c.Phone),
		Role:      role,
		Reference: normalizeReference(c.Reference),
		Color:     Palette[len(r.signers)%len(Palette)],
	}
	next := make([]Signer, len(r.signers), len(r.signers)+1)
	copy(next, r.signers)
	return Registry{signers: append(next, s)}, true
}

// Update applies patch to the signer at index. Blank names or emails are refused.
func (r Registry) Update(index int, patch Patch) (Registry, bool) {
	current, ok := r.At(index)
	if !ok {
		return r, false
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return r, false
		}
		current.Name = name
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email == "" {
			return r, false
		}
		current.Email = email
	}
	if patch.Phone != nil {
		current.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return r, false
		}
		current.Role = *patch.Role
	}
	if patch.Reference != nil {
		current.Reference = normalizeReference(*patch.Reference)
	}
	next := cloneSigners(r.signers)
	next[index] = current
	return Registry{signers: next}, true
}

// Remove drops the signer at index. Fields bound to the signer are not touched here.
func (r Registry) Remove(index int) (Registry, bool) {
	if index < 0 || index >= len(r.signers) {
		return r, false
	}
	next := make([]Signer, 0, len(r.signers)-1)
	next = append(next, r.signers[:index]...)
	next = append(next, r.signers[index+1:]...)
	return Registry{signers: next}, true
}

// MarshalJSON encodes the registry as a plain array.
func (r Registry) MarshalJSON() ([]byte, error) {
	if r.signers == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.signers)
}

// UnmarshalJSON decodes a plain array, keeping stored colors.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var signers []Signer
	if err := json.Unmarshal(data, &signers); err != nil {
		return err
	}
	r.signers = signers
	return nil
}

func normalizeReference(ref Reference) Reference {
	ref.ID = strings.TrimSpace(ref.ID)
	if ref.IsZero() {
		return Reference{}
	}
	return ref
}

func cloneSigners(values []Signer) []Signer {
	if len(values) == 0 {
		return nil
	}
	out := make([]Signer, len(values))
	copy(out, values)
	return out
}
