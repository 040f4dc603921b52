package settings

import (
	"context"
	"sync"
)

// MemoryStore implements Store with no persistence. State is lost when the
// process exits. Used in tests and in deployments that explicitly opt out
// of durable state.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: NewState()}
}

// Load returns a copy of the current state.
func (m *MemoryStore) Load(ctx context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyState(m.state), nil
}

// Save replaces the current state.
func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = copyState(state)
	return nil
}

// MergeInvalidCredentials unions credentials into the invalid set.
func (m *MemoryStore) MergeInvalidCredentials(ctx context.Context, credentials []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.mergeInvalid(credentials), nil
}

// ResetInvalidCredentials clears the invalid set.
func (m *MemoryStore) ResetInvalidCredentials(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.InvalidCredentials = nil
	return nil
}

// Compact is a no-op for the memory store.
func (m *MemoryStore) Compact(ctx context.Context) error {
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// copyState returns a deep copy so callers never share slices with the
// store's internal state.
func copyState(s *State) *State {
	out := &State{UpdatedAt: s.UpdatedAt}
	if len(s.InvalidCredentials) > 0 {
		out.InvalidCredentials = make([]string, len(s.InvalidCredentials))
		copy(out.InvalidCredentials, s.InvalidCredentials)
	}
	return out
}
