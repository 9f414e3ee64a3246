package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrStateNotFound is returned when no persisted draft exists yet.
var ErrStateNotFound = errors.New("engine: state not found")

// StateStore persists session snapshots.
type StateStore interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// Repository stores the draft as a JSON file.
type Repository struct {
	path string
}

// NewRepository creates a repository that keeps its draft in dir/session.json.
func NewRepository(dir string) *Repository {
	return &Repository{path: filepath.Join(dir, "session.json")}
}

// Path returns the draft file location.
func (r *Repository) Path() string {
	return r.path
}

// Load reads the persisted state if present.
func (r *Repository) Load() (State, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("engine: read draft: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("engine: decode draft: %w", err)
	}
	state.Session.IsProcessing = false
	return state, nil
}

// Save writes the state through a temp file and rename.
func (r *Repository) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("engine: create draft dir: %w", err)
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("engine: encode draft: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("engine: write draft: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("engine: replace draft: %w", err)
	}
	return nil
}

// Clear removes the draft. A missing draft is not an error.
func (r *Repository) Clear() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("engine: remove draft: %w", err)
	}
	return nil
}
