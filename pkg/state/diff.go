package state

import (
	"fmt"

	"github.com/mesh-intelligence/tracker/pkg/types"
)

// presence says where an aspect id sits in its store.
type presence int

const (
	absent presence = iota
	live
	tombstoned
)

func (p presence) String() string {
	switch p {
	case live:
		return "live"
	case tombstoned:
		return "tombstoned"
	default:
		return "absent"
	}
}

// entry is the full store-side record of one aspect id.
type entry struct {
	presence presence
	aspect   types.Aspect
}

// transition records an entry before and after a span of changes.
type transition struct {
	before entry
	after  entry
}

// Diff is a composable, reversible record of what a span of state changes
// did. For every touched (aspect type, id) it keeps the entry as it was
// before the span and as it is after, so reverting restores the earlier
// entries exactly, tombstones included.
type Diff struct {
	entries map[Key]transition
}

// Len returns the number of entries the diff touches.
func (d *Diff) Len() int { return len(d.entries) }

// Apply applies change to s atomically and returns the resulting diff. On
// failure every touched entry is restored and s is unchanged.
func Apply(s *State, change *StateChange) (*Diff, error) {
	keys := change.Keys()
	stores := make(map[string]*Store)
	for _, k := range keys {
		if _, ok := stores[k.AspectType]; ok {
			continue
		}
		store, err := s.Store(k.AspectType)
		if err != nil {
			return nil, err
		}
		stores[k.AspectType] = store
	}

	d := &Diff{entries: make(map[Key]transition, len(keys))}
	for _, k := range keys {
		d.entries[k] = transition{before: stores[k.AspectType].entryOf(k.AspectID)}
	}

	if err := change.ApplyToState(s); err != nil {
		for k, tr := range d.entries {
			stores[k.AspectType].setEntry(k.AspectID, tr.before)
		}
		return nil, err
	}

	for k, tr := range d.entries {
		tr.after = stores[k.AspectType].entryOf(k.AspectID)
		d.entries[k] = tr
	}
	return d, nil
}

// Compose returns a diff equivalent to d followed by newer. Neither input is
// modified.
func (d *Diff) Compose(newer *Diff) *Diff {
	out := &Diff{entries: make(map[Key]transition, len(d.entries)+len(newer.entries))}
	for k, tr := range d.entries {
		out.entries[k] = tr
	}
	for k, tr := range newer.entries {
		if prev, ok := out.entries[k]; ok {
			tr.before = prev.before
		}
		out.entries[k] = tr
	}
	return out
}

// Revert restores every touched entry of s to its state before the diff.
// It fails with ErrInvalidState, leaving s unchanged, when an entry is not
// where the diff left it.
func (d *Diff) Revert(s *State) error {
	stores := make(map[string]*Store)
	for k, tr := range d.entries {
		store, ok := stores[k.AspectType]
		if !ok {
			var err error
			if store, err = s.Store(k.AspectType); err != nil {
				return err
			}
			stores[k.AspectType] = store
		}
		if got := store.entryOf(k.AspectID).presence; got != tr.after.presence {
			return fmt.Errorf("%w: %s/%s is %s, diff expects %s",
				types.ErrInvalidState, k.AspectType, k.AspectID, got, tr.after.presence)
		}
	}
	for k, tr := range d.entries {
		stores[k.AspectType].setEntry(k.AspectID, tr.before)
	}
	return nil
}

// entryOf captures the entry for id. The aspect is cloned.
func (s *Store) entryOf(id string) entry {
	if a, ok := s.live[id]; ok {
		return entry{presence: live, aspect: a.Clone()}
	}
	if a, ok := s.tombstones[id]; ok {
		return entry{presence: tombstoned, aspect: a.Clone()}
	}
	return entry{presence: absent}
}

// setEntry forces the entry for id, repairing the tag index as it goes.
func (s *Store) setEntry(id string, e entry) {
	if a, ok := s.live[id]; ok {
		s.unindexTags(id, a)
		delete(s.live, id)
	}
	delete(s.tombstones, id)

	switch e.presence {
	case live:
		a := e.aspect.Clone()
		s.live[id] = a
		s.indexTags(id, a)
	case tombstoned:
		s.tombstones[id] = e.aspect.Clone()
	}
}
