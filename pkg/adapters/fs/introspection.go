package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Primary     string     `json:"primary"`
	Backup      string     `json:"backup"`
	LoadedFrom  string     `json:"loaded_from"`
	Dirty       bool       `json:"dirty"`
	Writes      int        `json:"writes"`
	Failures    int        `json:"failures"`
	Watching    bool       `json:"watching"`
	LastWriteAt *time.Time `json:"last_write_at,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := StoreState{
		Primary:    s.primary,
		Backup:     s.backup,
		LoadedFrom: s.loadedFrom,
		Dirty:      s.pending != nil,
		Writes:     s.writes,
		Failures:   s.failures,
		Watching:   s.watching,
	}
	if !s.lastWriteAt.IsZero() {
		at := s.lastWriteAt
		state.LastWriteAt = &at
	}
	return state
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
