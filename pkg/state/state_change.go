package state

import (
	"fmt"

	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Key identifies an aspect across stores.
type Key struct {
	AspectType string
	AspectID   string
}

// TypedChange pairs an AspectChange with its aspect type.
type TypedChange struct {
	AspectType string
	Change     AspectChange
}

// changeGroup maps aspect type to aspect id to change.
type changeGroup map[string]map[string]AspectChange

// StateChange is a batch of aspect changes across aspect types. A given
// (aspect type, id) pair appears at most once, in exactly one of the
// additions, updates or removals groups.
type StateChange struct {
	additions changeGroup
	updates   changeGroup
	removals  changeGroup
}

// NewStateChange returns an empty change.
func NewStateChange() *StateChange {
	return &StateChange{
		additions: make(changeGroup),
		updates:   make(changeGroup),
		removals:  make(changeGroup),
	}
}

func (c *StateChange) group(op Op) (changeGroup, bool) {
	switch op {
	case OpAdd:
		return c.additions, true
	case OpUpdate:
		return c.updates, true
	case OpRemove:
		return c.removals, true
	default:
		return nil, false
	}
}

func (c *StateChange) groups() []changeGroup {
	return []changeGroup{c.additions, c.updates, c.removals}
}

// AddChange books change for aspectType. It fails with ErrAlreadyModified if
// the (aspectType, id) pair is already booked by any group.
func (c *StateChange) AddChange(aspectType string, change AspectChange) error {
	id := change.AspectID()
	for _, g := range c.groups() {
		if _, ok := g[aspectType][id]; ok {
			return fmt.Errorf("%w: %s/%s", types.ErrAlreadyModified, aspectType, id)
		}
	}
	g, ok := c.group(change.Op())
	if !ok {
		return fmt.Errorf("%w: %v", types.ErrUnknownChange, change.Op())
	}
	byID, ok := g[aspectType]
	if !ok {
		byID = make(map[string]AspectChange)
		g[aspectType] = byID
	}
	byID[id] = change
	return nil
}

// RemoveChange unbooks the change for (aspectType, id). It fails with
// ErrUnknownAspectType when the change touches nothing of that type, and
// with ErrNotModified when the type is present but the id is not.
func (c *StateChange) RemoveChange(aspectType, id string) error {
	known := false
	for _, g := range c.groups() {
		byID, ok := g[aspectType]
		if !ok {
			continue
		}
		known = true
		if _, ok := byID[id]; !ok {
			continue
		}
		delete(byID, id)
		if len(byID) == 0 {
			delete(g, aspectType)
		}
		return nil
	}
	if !known {
		return fmt.Errorf("%w: change has no %q aspects", types.ErrUnknownAspectType, aspectType)
	}
	return fmt.Errorf("%w: %s/%s", types.ErrNotModified, aspectType, id)
}

// Get returns the change booked for (aspectType, id).
func (c *StateChange) Get(aspectType, id string) (AspectChange, bool) {
	for _, g := range c.groups() {
		if ch, ok := g[aspectType][id]; ok {
			return ch, true
		}
	}
	return AspectChange{}, false
}

// Len returns the number of booked aspect changes.
func (c *StateChange) Len() int {
	n := 0
	for _, g := range c.groups() {
		for _, byID := range g {
			n += len(byID)
		}
	}
	return n
}

// IsEmpty reports whether the change books nothing.
func (c *StateChange) IsEmpty() bool { return c.Len() == 0 }

// Changes returns every booked change in application order: additions,
// then updates, then removals, each sorted by aspect type and id.
func (c *StateChange) Changes() []TypedChange {
	out := make([]TypedChange, 0, c.Len())
	for _, g := range c.groups() {
		for _, kind := range sortedKeys(g) {
			for _, id := range sortedKeys(g[kind]) {
				out = append(out, TypedChange{AspectType: kind, Change: g[kind][id]})
			}
		}
	}
	return out
}

// Keys returns the (aspect type, id) pairs the change touches, in
// application order.
func (c *StateChange) Keys() []Key {
	changes := c.Changes()
	out := make([]Key, len(changes))
	for i, tc := range changes {
		out[i] = Key{AspectType: tc.AspectType, AspectID: tc.Change.AspectID()}
	}
	return out
}

// Clone returns a copy of the change. AspectChange values are immutable, so
// only the maps are copied.
func (c *StateChange) Clone() *StateChange {
	out := NewStateChange()
	for _, tc := range c.Changes() {
		g, _ := out.group(tc.Change.Op())
		byID, ok := g[tc.AspectType]
		if !ok {
			byID = make(map[string]AspectChange)
			g[tc.AspectType] = byID
		}
		byID[tc.Change.AspectID()] = tc.Change
	}
	return out
}

// ApplyToState applies all additions, then all updates, then all removals.
// A failure aborts the call without rolling back what was already applied;
// use Apply for all-or-nothing semantics.
func (c *StateChange) ApplyToState(s *State) error {
	for _, g := range c.groups() {
		if err := g.each(s, AspectChange.ApplyToStore); err != nil {
			return err
		}
	}
	return nil
}

// RevertFromState mirrors ApplyToState: removals, then updates, then
// additions are reverted.
func (c *StateChange) RevertFromState(s *State) error {
	groups := c.groups()
	for i := len(groups) - 1; i >= 0; i-- {
		if err := groups[i].each(s, AspectChange.RevertFromStore); err != nil {
			return err
		}
	}
	return nil
}

func (g changeGroup) each(s *State, fn func(AspectChange, *Store) error) error {
	for _, kind := range sortedKeys(g) {
		store, err := s.Store(kind)
		if err != nil {
			return err
		}
		byID := g[kind]
		for _, id := range sortedKeys(byID) {
			if err := fn(byID[id], store); err != nil {
				return fmt.Errorf("%s %s/%s: %w", byID[id].Op(), kind, id, err)
			}
		}
	}
	return nil
}
