package types

import (
	"encoding/json"
	"fmt"
	"slices"
)

// AspectKind describes one registered aspect type.
type AspectKind struct {
	// Name is the registry key, e.g. "note".
	Name string

	// New returns an empty aspect of this kind, ready to be decoded into.
	New func() Aspect
}

// Registry is the closed set of aspect types a State is built from. It is
// fixed at construction so every State created from it has the same stores
// for its whole lifetime.
type Registry struct {
	kinds map[string]AspectKind
	names []string
}

// NewRegistry builds a registry from kinds. It returns ErrInvalidAspect when
// a kind has no name or constructor, or when a name is registered twice.
func NewRegistry(kinds ...AspectKind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]AspectKind, len(kinds))}
	for _, k := range kinds {
		if k.Name == "" || k.New == nil {
			return nil, fmt.Errorf("%w: aspect kind %q is incomplete", ErrInvalidAspect, k.Name)
		}
		if _, dup := r.kinds[k.Name]; dup {
			return nil, fmt.Errorf("%w: aspect kind %q registered twice", ErrInvalidAspect, k.Name)
		}
		r.kinds[k.Name] = k
		r.names = append(r.names, k.Name)
	}
	slices.Sort(r.names)
	return r, nil
}

// DefaultRegistry returns a registry holding the built-in aspect kinds.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(NoteKind)
	if err != nil {
		panic(err)
	}
	return r
}

// Kinds returns the registered aspect type names in sorted order.
func (r *Registry) Kinds() []string {
	return slices.Clone(r.names)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.kinds[name]
	return ok
}

// Lookup returns the kind registered under name, or ErrUnknownAspectType.
func (r *Registry) Lookup(name string) (AspectKind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return AspectKind{}, fmt.Errorf("%w: %q", ErrUnknownAspectType, name)
	}
	return k, nil
}

// Decode unmarshals a JSON aspect of the named kind.
func (r *Registry) Decode(name string, data []byte) (Aspect, error) {
	k, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	a := k.New()
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("%w: decoding %s aspect: %v", ErrInvalidAspect, name, err)
	}
	return a, nil
}
