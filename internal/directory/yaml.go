package directory

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/countersign/internal/signer"
)

// YAML reads candidates from a file on every call so edits show up
// without a restart. A missing file is an empty directory.
type YAML struct {
	path string
}

type yamlFile struct {
	Signers []yamlCandidate `yaml:"signers"`
}

type yamlCandidate struct {
	Name      string           `yaml:"name"`
	Email     string           `yaml:"email"`
	Phone     string           `yaml:"phone,omitempty"`
	Role      string           `yaml:"role,omitempty"`
	Reference signer.Reference `yaml:"reference,omitempty"`
}

// NewYAML returns a directory backed by path.
func NewYAML(path string) *YAML {
	return &YAML{path: path}
}

// Path returns the backing file.
func (y *YAML) Path() string { return y.path }

// Candidates implements Directory.
func (y *YAML) Candidates(ctx context.Context) ([]signer.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadYAML(y.path)
}

// Lookup implements Directory.
func (y *YAML) Lookup(ctx context.Context, email string) (signer.Candidate, error) {
	candidates, err := y.Candidates(ctx)
	if err != nil {
		return signer.Candidate{}, err
	}
	return find(candidates, email)
}

// LoadYAML parses a signers file.
func LoadYAML(path string) ([]signer.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: read %s: %w", path, err)
	}
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("directory: parse %s: %w", path, err)
	}
	candidates := make([]signer.Candidate, 0, len(file.Signers))
	for i, entry := range file.Signers {
		role, err := signer.ParseRole(entry.Role)
		if err != nil {
			return nil, fmt.Errorf("directory: %s entry %d: %w", path, i+1, err)
		}
		candidates = append(candidates, signer.Candidate{
			Name:      entry.Name,
			Email:     entry.Email,
			Phone:     entry.Phone,
			Role:      role,
			Reference: entry.Reference,
		})
	}
	return normalize(candidates), nil
}

// WriteYAML stores candidates in the format LoadYAML reads.
func WriteYAML(path string, candidates []signer.Candidate) error {
	file := yamlFile{Signers: make([]yamlCandidate, 0, len(candidates))}
	for _, c := range candidates {
		file.Signers = append(file.Signers, yamlCandidate{
			Name:      c.Name,
			Email:     c.Email,
			Phone:     c.Phone,
			Role:      string(c.Role),
			Reference: c.Reference,
		})
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("directory: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("directory: write %s: %w", path, err)
	}
	return nil
}
