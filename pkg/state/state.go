package state

import (
	"fmt"

	"github.com/mesh-intelligence/tracker/pkg/types"
)

// State is a snapshot of campaign state: one Store per aspect type in its
// registry.
type State struct {
	registry *types.Registry
	stores   map[string]*Store
}

// New returns an empty state with a store for every kind in registry.
func New(registry *types.Registry) *State {
	s := &State{
		registry: registry,
		stores:   make(map[string]*Store),
	}
	for _, kind := range registry.Kinds() {
		s.stores[kind] = NewStore()
	}
	return s
}

// Registry returns the registry the state was built from.
func (s *State) Registry() *types.Registry { return s.registry }

// Store returns the store for aspectType, or ErrUnknownAspectType.
func (s *State) Store(aspectType string) (*Store, error) {
	store, ok := s.stores[aspectType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownAspectType, aspectType)
	}
	return store, nil
}

// Kinds returns the aspect types held by the state, sorted.
func (s *State) Kinds() []string {
	return sortedKeys(s.stores)
}

// Clone returns a deep copy of the state. The registry is shared.
func (s *State) Clone() *State {
	out := &State{
		registry: s.registry,
		stores:   make(map[string]*Store, len(s.stores)),
	}
	for kind, store := range s.stores {
		out.stores[kind] = store.Clone()
	}
	return out
}

// Equal reports whether both states hold equal stores for the same kinds.
func (s *State) Equal(o *State) bool {
	if len(s.stores) != len(o.stores) {
		return false
	}
	for kind, store := range s.stores {
		other, ok := o.stores[kind]
		if !ok || !store.Equal(other) {
			return false
		}
	}
	return true
}
