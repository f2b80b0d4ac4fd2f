package timeline

import (
	"time"

	"github.com/mesh-intelligence/tracker/pkg/state"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Event is a timestamped occurrence carrying a state change. Events are not
// edited in place; to change one, replace it on the timeline.
type Event struct {
	// Timestamp is the logical time the change takes effect.
	Timestamp types.Timestamp

	// Created is the wall-clock time the event was recorded. Informational.
	Created time.Time

	// Description is free text shown to users.
	Description string

	// Change is the state change the event brings about. Nil means no
	// change.
	Change *state.StateChange
}

// NewEvent returns an event created now.
func NewEvent(at types.Timestamp, description string, change *state.StateChange) Event {
	return Event{
		Timestamp:   at,
		Created:     time.Now().UTC(),
		Description: description,
		Change:      change,
	}
}

// owned returns a copy of e whose change the timeline can keep.
func (e Event) owned() Event {
	if e.Change == nil {
		e.Change = state.NewStateChange()
	} else {
		e.Change = e.Change.Clone()
	}
	return e
}

// SkipDiff is the memoized diff at a valid position i. Reverting Span from
// the state after event i yields the state after event Base; Base is -1 for
// the empty state before the first event. Own is the diff of event i alone.
type SkipDiff struct {
	Base int
	Span *state.Diff
	Own  *state.Diff
}

// lowbit returns the lowest set bit of n.
func lowbit(n int) int { return n & -n }

// newSkipDiff builds the skip diff for position i from own, the diff of
// event i, and the skip diffs already built for positions below i.
func newSkipDiff(diffs []SkipDiff, i int, own *state.Diff) SkipDiff {
	base := i - lowbit(i+1)
	span := own
	for p := i - 1; p > base; p = diffs[p].Base {
		span = diffs[p].Span.Compose(span)
	}
	return SkipDiff{Base: base, Span: span, Own: own}
}
