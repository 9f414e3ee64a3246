// Package directory supplies the candidate signers an operator can pick
// from: tenants on file and internal users.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/countersign/internal/config"
	"github.com/kingrea/countersign/internal/signer"
)

// ErrNotFound is returned by Lookup when no candidate has the email.
var ErrNotFound = errors.New("directory: candidate not found")

// Directory lists candidate signers.
type Directory interface {
	Candidates(ctx context.Context) ([]signer.Candidate, error)
	Lookup(ctx context.Context, email string) (signer.Candidate, error)
}

// Static serves a fixed candidate list.
type Static struct {
	candidates []signer.Candidate
}

// NewStatic copies candidates into a directory, dropping incomplete
// entries and later duplicates.
func NewStatic(candidates ...signer.Candidate) *Static {
	return &Static{candidates: normalize(candidates)}
}

// Candidates implements Directory.
func (s *Static) Candidates(ctx context.Context) ([]signer.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]signer.Candidate(nil), s.candidates...), nil
}

// Lookup implements Directory.
func (s *Static) Lookup(ctx context.Context, email string) (signer.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return signer.Candidate{}, err
	}
	return find(s.candidates, email)
}

// New builds the directory named by cfg. The returned closer releases any
// database handle and is never nil.
func New(ctx context.Context, cfg config.DirectoryConfig) (Directory, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Source {
	case "", "none":
		return NewStatic(), noop, nil
	case "yaml":
		return NewYAML(cfg.Path), noop, nil
	case "sqlite", "mysql":
		dsn := cfg.DSN
		if cfg.Source == "sqlite" && dsn == "" {
			dsn = cfg.Path
		}
		store, err := OpenSQL(ctx, cfg.Source, dsn)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("directory: unsupported source %q", cfg.Source)
	}
}

// Filter returns candidates whose name, email or role contains query,
// case-insensitively. An empty query returns everything.
func Filter(candidates []signer.Candidate, query string) []signer.Candidate {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]signer.Candidate(nil), candidates...)
	}
	out := make([]signer.Candidate, 0, len(candidates))
	for _, c := range candidates {
		haystack := strings.ToLower(c.Name + " " + c.Email + " " + c.Role.FriendlyName())
		if strings.Contains(haystack, query) {
			out = append(out, c)
		}
	}
	return out
}

func normalize(candidates []signer.Candidate) []signer.Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]signer.Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.Name = strings.TrimSpace(c.Name)
		c.Email = strings.TrimSpace(c.Email)
		if !c.Complete() {
			continue
		}
		key := strings.ToLower(c.Email)
		if seen[key] {
			continue
		}
		seen[key] = true
		if !c.Role.Valid() {
			c.Role = signer.RoleOther
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func find(candidates []signer.Candidate, email string) (signer.Candidate, error) {
	email = strings.TrimSpace(email)
	for _, c := range candidates {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return signer.Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, email)
}
