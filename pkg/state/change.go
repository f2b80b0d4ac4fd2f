package state

import (
	"fmt"

	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Op identifies the kind of an AspectChange.
type Op int

// Change operations.
const (
	OpAdd Op = iota + 1
	OpUpdate
	OpRemove
)

var opNames = map[Op]string{
	OpAdd:    "add",
	OpUpdate: "update",
	OpRemove: "remove",
}

// String returns the operation name used in serialized changes.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// ParseOp reads an operation name.
func ParseOp(s string) (Op, error) {
	for op, name := range opNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", types.ErrUnknownChange, s)
}

// AspectChange is one reversible operation on a Store. It is a closed union
// of Add, Update and Remove; construct it with NewAdd, NewAddWithID,
// NewUpdate or NewRemove. Values are immutable and safe to share.
type AspectChange struct {
	op       Op
	id       string
	aspect   types.Aspect // Add: the added aspect. Update: the new value.
	previous types.Aspect // Update: the value being replaced.
}

// NewAdd returns a change adding a clone of aspect under a fresh id.
func NewAdd(aspect types.Aspect) AspectChange {
	return NewAddWithID(types.NewAspectID(), aspect)
}

// NewAddWithID returns a change adding a clone of aspect under id. It is
// meant for decoding persisted changes; new changes should use NewAdd.
func NewAddWithID(id string, aspect types.Aspect) AspectChange {
	return AspectChange{op: OpAdd, id: id, aspect: aspect.Clone()}
}

// NewRemove returns a change tombstoning the aspect under id.
func NewRemove(id string) AspectChange {
	return AspectChange{op: OpRemove, id: id}
}

// NewUpdate returns a change replacing previous with next under id.
// Reverting it puts previous back.
func NewUpdate(id string, previous, next types.Aspect) AspectChange {
	return AspectChange{op: OpUpdate, id: id, aspect: next.Clone(), previous: previous.Clone()}
}

// Op returns the change kind.
func (c AspectChange) Op() Op { return c.op }

// AspectID returns the id of the aspect the change targets.
func (c AspectChange) AspectID() string { return c.id }

// Aspect returns a clone of the added aspect (Add) or the new value
// (Update). It returns nil for Remove.
func (c AspectChange) Aspect() types.Aspect {
	if c.aspect == nil {
		return nil
	}
	return c.aspect.Clone()
}

// Previous returns a clone of the replaced value of an Update, or nil.
func (c AspectChange) Previous() types.Aspect {
	if c.previous == nil {
		return nil
	}
	return c.previous.Clone()
}

// ApplyToStore performs the change on store. The store is left untouched
// when the change fails.
func (c AspectChange) ApplyToStore(store *Store) error {
	switch c.op {
	case OpAdd:
		return store.Add(c.id, c.aspect.Clone())
	case OpUpdate:
		_, err := store.Replace(c.id, c.aspect.Clone())
		return err
	case OpRemove:
		return store.RemoveToTombstone(c.id)
	default:
		return fmt.Errorf("%w: %v", types.ErrUnknownChange, c.op)
	}
}

// RevertFromStore undoes the change on store. Changes to the same id must be
// reverted in the reverse order they were applied.
func (c AspectChange) RevertFromStore(store *Store) error {
	switch c.op {
	case OpAdd:
		return store.RemoveFromLive(c.id)
	case OpUpdate:
		_, err := store.Replace(c.id, c.previous.Clone())
		return err
	case OpRemove:
		return store.RestoreFromTombstone(c.id)
	default:
		return fmt.Errorf("%w: %v", types.ErrUnknownChange, c.op)
	}
}
