package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore implements Store backed by a YAML file. Writes are atomic
// (write to a temporary file, then rename) so a crash mid-write never
// leaves a truncated state file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a YAML-file-backed store at the given path. The
// parent directory is created if it does not exist. A missing file is not
// an error; it reads as empty state.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the state file. A missing file yields an empty state.
func (f *FileStore) Load(ctx context.Context) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

// loadLocked reads and parses the state file. Caller must hold the lock.
func (f *FileStore) loadLocked() (*State, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %q: %w", f.path, err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %q: %w", f.path, err)
	}
	return &state, nil
}

// Save writes the full state atomically.
func (f *FileStore) Save(ctx context.Context, state *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveLocked(state)
}

// saveLocked serializes and atomically replaces the state file. Caller
// must hold the lock.
func (f *FileStore) saveLocked(state *State) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// MergeInvalidCredentials unions credentials into the persisted invalid
// set, writing only when the set actually changed.
func (f *FileStore) MergeInvalidCredentials(ctx context.Context, credentials []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.loadLocked()
	if err != nil {
		return false, err
	}

	if !state.mergeInvalid(credentials) {
		return false, nil
	}

	if err := f.saveLocked(state); err != nil {
		return false, err
	}
	return true, nil
}

// ResetInvalidCredentials clears the persisted invalid set.
func (f *FileStore) ResetInvalidCredentials(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.loadLocked()
	if err != nil {
		return err
	}
	if len(state.InvalidCredentials) == 0 {
		return nil
	}

	state.InvalidCredentials = nil
	return f.saveLocked(state)
}

// Compact is a no-op for the file store; the file is rewritten whole on
// every save.
func (f *FileStore) Compact(ctx context.Context) error {
	return nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error {
	return nil
}
