package settings

import (
	"context"
	"sort"
	"time"
)

// State is the runtime state the gateway persists across restarts.
// The invalid-credential set is the important part: once a credential has
// been confirmed rejected by the upstream, remembering it avoids re-probing
// it on every boot.
type State struct {
	// InvalidCredentials is the set of credentials confirmed rejected by
	// the upstream, stored sorted for deterministic serialization. The set
	// only grows, except through ResetInvalidCredentials.
	InvalidCredentials []string `yaml:"invalid_credentials" json:"invalid_credentials"`

	// UpdatedAt is when the state was last written.
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// HasInvalid reports whether the credential is in the invalid set.
func (s *State) HasInvalid(credential string) bool {
	for _, c := range s.InvalidCredentials {
		if c == credential {
			return true
		}
	}
	return false
}

// mergeInvalid unions credentials into the invalid set, keeping it sorted.
// Returns true if the set changed.
func (s *State) mergeInvalid(credentials []string) bool {
	set := make(map[string]bool, len(s.InvalidCredentials)+len(credentials))
	for _, c := range s.InvalidCredentials {
		set[c] = true
	}

	changed := false
	for _, c := range credentials {
		if c == "" || set[c] {
			continue
		}
		set[c] = true
		changed = true
	}
	if !changed {
		return false
	}

	merged := make([]string, 0, len(set))
	for c := range set {
		merged = append(merged, c)
	}
	sort.Strings(merged)
	s.InvalidCredentials = merged
	return true
}

// Store persists gateway runtime state. Implementations must be safe for
// concurrent use.
//
// The invalid-credential set follows union semantics: MergeInvalidCredentials
// never removes members, and implementations must skip the write entirely
// when the merge does not change the set, so repeated merges with the same
// inputs are idempotent and cheap.
type Store interface {
	// Load retrieves the persisted state. A store with no prior state
	// returns an empty State, not an error.
	Load(ctx context.Context) (*State, error)

	// Save persists the full state, overwriting what was there.
	Save(ctx context.Context, state *State) error

	// MergeInvalidCredentials unions the given credentials into the
	// persisted invalid set. Returns true if the set changed (and was
	// therefore written).
	MergeInvalidCredentials(ctx context.Context, credentials []string) (bool, error)

	// ResetInvalidCredentials clears the persisted invalid set. Used on
	// explicit operator request via configuration reload.
	ResetInvalidCredentials(ctx context.Context) error

	// Compact reclaims storage space where the backend supports it.
	// A no-op otherwise.
	Compact(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
