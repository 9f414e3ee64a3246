package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kingrea/countersign/internal/config"
	"github.com/kingrea/countersign/internal/signer"
)

func sampleCandidates() []signer.Candidate {
	return []signer.Candidate{
		{Name: "Ben Okafor", Email: "ben@example.com", Role: signer.RoleLandlord, Reference: signer.UserRef("usr_2")},
		{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "0400 000 000", Role: signer.RolePrimaryTenant, Reference: signer.TenantRef("ten_1")},
	}
}

func TestStaticDropsIncompleteAndDuplicates(t *testing.T) {
	dir := NewStatic(
		signer.Candidate{Name: "Ada", Email: "ada@example.com"},
		signer.Candidate{Name: "", Email: "nobody@example.com"},
		signer.Candidate{Name: "Ada Again", Email: "ADA@example.com"},
	)
	got, err := dir.Candidates(context.Background())
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 1 || got[0].Role != signer.RoleOther {
		t.Fatalf("expected one normalized candidate, got %+v", got)
	}
	if _, err := dir.Lookup(context.Background(), "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStaticMapsUnknownRoleToOther(t *testing.T) {
	dir := NewStatic(signer.Candidate{Name: "Ada", Email: "ada@example.com", Role: signer.Role("BOGUS")})
	got, err := dir.Candidates(context.Background())
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 1 || got[0].Role != signer.RoleOther {
		t.Fatalf("expected role OTHER, got %+v", got)
	}
	var reg signer.Registry
	if _, ok := reg.Add(got[0]); !ok {
		t.Fatalf("expected normalized candidate to be addable")
	}
}

func TestFilter(t *testing.T) {
	all := normalize(sampleCandidates())
	if got := Filter(all, "landlord"); len(got) != 1 || got[0].Email != "ben@example.com" {
		t.Fatalf("expected role match, got %+v", got)
	}
	if got := Filter(all, "  "); len(got) != 2 {
		t.Fatalf("expected empty query to keep everything, got %d", len(got))
	}
	if got := Filter(all, "ADA@"); len(got) != 1 {
		t.Fatalf("expected case-insensitive email match, got %d", len(got))
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signers.yaml")
	if err := WriteYAML(path, sampleCandidates()); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir := NewYAML(path)
	got, err := dir.Candidates(context.Background())
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Ada Lovelace" {
		t.Fatalf("expected sorted candidates, got %+v", got)
	}
	ada, err := dir.Lookup(context.Background(), "ADA@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ada.Reference != signer.TenantRef("ten_1") || ada.Phone == "" {
		t.Fatalf("unexpected candidate %+v", ada)
	}
}

func TestYAMLMissingFileIsEmpty(t *testing.T) {
	got, err := NewYAML(filepath.Join(t.TempDir(), "none.yaml")).Candidates(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty directory, got %v %v", got, err)
	}
}

func TestYAMLRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signers.yaml")
	body := "signers:\n  - name: Ada\n    email: ada@example.com\n    role: astronaut\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadYAML(path); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestYAMLAcceptsLooseRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signers.yaml")
	body := "signers:\n  - name: Ada\n    email: ada@example.com\n    role: co-signer\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got[0].Role != signer.RoleCoSigner {
		t.Fatalf("expected CO_SIGNER, got %s", got[0].Role)
	}
}

func TestSQLiteDirectory(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQL(ctx, "sqlite", filepath.Join(t.TempDir(), "signers.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Upsert(ctx, sampleCandidates()...); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	renamed := sampleCandidates()[1]
	renamed.Name = "Ada King"
	if err := store.Upsert(ctx, renamed); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := store.Candidates(ctx)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Ada King" {
		t.Fatalf("expected updated candidate first, got %+v", got)
	}
	ben, err := store.Lookup(ctx, "BEN@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ben.Role != signer.RoleLandlord || ben.Reference != signer.UserRef("usr_2") {
		t.Fatalf("unexpected candidate %+v", ben)
	}
	if err := store.Delete(ctx, "ben@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Lookup(ctx, "ben@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "ben@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	dir, closeFn, err := New(ctx, config.DirectoryConfig{Source: "none"})
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if got, _ := dir.Candidates(ctx); len(got) != 0 {
		t.Fatalf("expected empty static directory")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "dir.db")
	dir, closeFn, err = New(ctx, config.DirectoryConfig{Source: "sqlite", Path: dbPath})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if _, ok := dir.(*SQL); !ok {
		t.Fatalf("expected SQL directory, got %T", dir)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, _, err := New(ctx, config.DirectoryConfig{Source: "ldap"}); err == nil {
		t.Fatalf("expected unsupported source to fail")
	}
	if _, _, err := New(ctx, config.DirectoryConfig{Source: "mysql"}); err == nil {
		t.Fatalf("expected mysql without dsn to fail")
	}
}
