package signer

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestAddAssignsPaletteByInsertionOrder(t *testing.T) {
	var reg Registry
	for i := 0; i < len(Palette)+2; i++ {
		var ok bool
		reg, ok = reg.Add(Candidate{Name: fmt.Sprintf("S%d", i), Email: fmt.Sprintf("s%d@example.com", i)})
		if !ok {
			t.Fatalf("add %d refused", i)
		}
	}
	for i, s := range reg.All() {
		want := Palette[i%len(Palette)]
		if s.Color != want {
			t.Fatalf("signer %d color = %s, want %s", i, s.Color, want)
		}
	}
}

func TestAddRejectsIncompleteCandidates(t *testing.T) {
	var reg Registry
	if _, ok := reg.Add(Candidate{Name: "", Email: "a@example.com"}); ok {
		t.Fatalf("expected missing name to be refused")
	}
	if _, ok := reg.Add(Candidate{Name: "A", Email: "   "}); ok {
		t.Fatalf("expected blank email to be refused")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestAddRefusesUnknownRole(t *testing.T) {
	var reg Registry
	if _, ok := reg.Add(Candidate{Name: "Ada", Email: "ada@example.com", Role: Role("BOGUS")}); ok {
		t.Fatalf("expected unknown role to be refused")
	}
	next, ok := reg.Add(Candidate{Name: "Ada", Email: "ada@example.com", Role: RoleGuarantor})
	if !ok {
		t.Fatalf("expected known role to be accepted")
	}
	bogus := Role("BOGUS")
	if _, ok := next.Update(0, Patch{Role: &bogus}); ok {
		t.Fatalf("expected update to refuse the same role")
	}
}

func TestAddDefaultsRoleAndLeavesReceiverUntouched(t *testing.T) {
	var reg Registry
	next, ok := reg.Add(Candidate{Name: "Ada", Email: "ada@example.com"})
	if !ok {
		t.Fatalf("add refused")
	}
	if reg.Len() != 0 {
		t.Fatalf("receiver mutated: len=%d", reg.Len())
	}
	got, _ := next.At(0)
	if got.Role != RoleOther {
		t.Fatalf("expected default role OTHER, got %s", got.Role)
	}
}

func TestColorsSurviveRemovalAndUpdate(t *testing.T) {
	var reg Registry
	reg, _ = reg.Add(Candidate{Name: "A", Email: "a@example.com"})
	reg, _ = reg.Add(Candidate{Name: "B", Email: "b@example.com"})
	reg, _ = reg.Add(Candidate{Name: "C", Email: "c@example.com"})
	before := map[string]string{}
	for _, s := range reg.All() {
		before[s.Email] = s.Color
	}
	reg, _ = reg.Remove(0)
	name := "Bee"
	reg, _ = reg.Update(0, Patch{Name: &name})
	reg, _ = reg.Add(Candidate{Name: "D", Email: "d@example.com"})
	for _, s := range reg.All() {
		if want, ok := before[s.Email]; ok && s.Color != want {
			t.Fatalf("color of %s changed from %s to %s", s.Email, want, s.Color)
		}
	}
	d, _ := reg.At(reg.IndexOf("d@example.com"))
	if d.Color != Palette[2] {
		t.Fatalf("expected new signer to take palette[len]=%s, got %s", Palette[2], d.Color)
	}
}

func TestUpdateRefusesBlankIdentity(t *testing.T) {
	var reg Registry
	reg, _ = reg.Add(Candidate{Name: "A", Email: "a@example.com"})
	blank := " "
	if _, ok := reg.Update(0, Patch{Email: &blank}); ok {
		t.Fatalf("expected blank email patch to be refused")
	}
	bad := Role("ASTRONAUT")
	if _, ok := reg.Update(0, Patch{Role: &bad}); ok {
		t.Fatalf("expected unknown role to be refused")
	}
	if _, ok := reg.Update(4, Patch{}); ok {
		t.Fatalf("expected out of range update to be refused")
	}
}

func TestEmailIsCaseSensitive(t *testing.T) {
	var reg Registry
	reg, _ = reg.Add(Candidate{Name: "A", Email: "a@example.com"})
	if reg.Contains("A@example.com") {
		t.Fatalf("expected case-sensitive email lookup")
	}
}

func TestReferenceNormalization(t *testing.T) {
	var reg Registry
	reg, _ = reg.Add(Candidate{Name: "A", Email: "a@example.com", Reference: Reference{Kind: ReferenceTenant}})
	got, _ := reg.At(0)
	if !got.Reference.IsZero() || got.Reference.Kind != ReferenceNone {
		t.Fatalf("expected id-less reference to collapse, got %+v", got.Reference)
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("co-signer")
	if err != nil || role != RoleCoSigner {
		t.Fatalf("expected CO_SIGNER, got %s (%v)", role, err)
	}
	if _, err := ParseRole("mayor"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if role, _ := ParseRole(""); role != RoleOther {
		t.Fatalf("expected OTHER for empty role, got %s", role)
	}
	if got := RolePrimaryTenant.FriendlyName(); got != "Primary Tenant" {
		t.Fatalf("unexpected friendly name %q", got)
	}
}

func TestRegistryJSONKeepsColors(t *testing.T) {
	reg := NewRegistry(Signer{Email: "x@example.com", Name: "X", Role: RoleWitness, Color: "#123456"})
	data, err := json.Marshal(reg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Registry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, _ := decoded.At(0)
	if got.Color != "#123456" {
		t.Fatalf("expected stored color, got %s", got.Color)
	}
}
