package timeline

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"

	"github.com/mesh-intelligence/tracker/pkg/state"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Timeline is an ordered log of events with unique timestamps, the state as
// of its newest valid event, and the skip diffs of the valid prefix.
type Timeline struct {
	registry *types.Registry
	logger   *slog.Logger

	events    []Event
	timestamp types.Timestamp
	state     *state.State
	skipDiffs []SkipDiff
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Timeline) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New returns an empty timeline over the aspect types in registry.
func New(registry *types.Registry, opts ...Option) *Timeline {
	t := &Timeline{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:    state.New(registry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Rebuild returns a timeline holding events, in any order. Events that do
// not apply in sequence are kept past the valid prefix, just as if they had
// been added out of order. It fails with ErrDuplicateTimestamp when two
// events share a timestamp.
func Rebuild(registry *types.Registry, events []Event, opts ...Option) (*Timeline, error) {
	t := New(registry, opts...)

	sorted := make([]Event, len(events))
	for i, e := range events {
		sorted[i] = e.owned()
	}
	slices.SortStableFunc(sorted, func(a, b Event) int { return a.Timestamp.Compare(b.Timestamp) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp == sorted[i-1].Timestamp {
			return nil, fmt.Errorf("%w: %s", types.ErrDuplicateTimestamp, sorted[i].Timestamp)
		}
	}

	diffs, st := t.revalidate(sorted, nil, 0, state.New(registry))
	t.commit(sorted, diffs, st)
	t.logger.Debug("timeline rebuilt", "events", len(sorted), "valid", len(diffs))
	return t, nil
}

// Registry returns the aspect registry the timeline's states are built from.
func (t *Timeline) Registry() *types.Registry { return t.registry }

// Len returns the number of events, valid or not.
func (t *Timeline) Len() int { return len(t.events) }

// ValidLen returns the length of the valid prefix.
func (t *Timeline) ValidLen() int { return len(t.skipDiffs) }

// Timestamp returns the timestamp of the newest valid event. ok is false
// when no event is valid.
func (t *Timeline) Timestamp() (ts types.Timestamp, ok bool) {
	return t.timestamp, len(t.skipDiffs) > 0
}

// Events returns the events in timestamp order. The returned slice is a
// copy; the changes it points to must not be modified.
func (t *Timeline) Events() []Event {
	return slices.Clone(t.events)
}

// IsValid reports whether an event exists at ts and lies in the valid
// prefix.
func (t *Timeline) IsValid(ts types.Timestamp) bool {
	i, found := t.search(ts)
	return found && i < len(t.skipDiffs)
}

// Current returns a copy of the state as of the newest valid event.
func (t *Timeline) Current() *state.State {
	return t.state.Clone()
}

// search returns the index of the first event whose timestamp is not before
// ts, and whether that event is at ts exactly.
func (t *Timeline) search(ts types.Timestamp) (int, bool) {
	i := sort.Search(len(t.events), func(i int) bool {
		return !t.events[i].Timestamp.Before(ts)
	})
	return i, i < len(t.events) && t.events[i].Timestamp == ts
}

// State returns the state at ts: the effect of every valid event at or
// before ts. Before the first event it is the empty state; past the newest
// valid event it is the current state. The result is a copy.
func (t *Timeline) State(ts types.Timestamp) (*state.State, error) {
	v := len(t.skipDiffs)
	if v == 0 || !ts.Before(t.timestamp) {
		return t.state.Clone(), nil
	}
	i, found := t.search(ts)
	if found {
		i++
	}
	return t.stateAfter(i - 1)
}

// stateAfter reconstructs the state after the valid event at position
// target, or the empty state for target -1. It walks back from the current
// state, taking a skip diff whenever its base does not overshoot the target
// and reverting a single event's own diff otherwise.
func (t *Timeline) stateAfter(target int) (*state.State, error) {
	if target < 0 {
		return state.New(t.registry), nil
	}
	st := t.state.Clone()
	for p := len(t.skipDiffs) - 1; p > target; {
		sd := t.skipDiffs[p]
		if sd.Base >= target {
			if err := sd.Span.Revert(st); err != nil {
				return nil, fmt.Errorf("revert skip diff %d..%d: %w", sd.Base+1, p, err)
			}
			p = sd.Base
			continue
		}
		if err := sd.Own.Revert(st); err != nil {
			return nil, fmt.Errorf("revert event at %s: %w", t.events[p].Timestamp, err)
		}
		p--
	}
	return st, nil
}

// AddEvent inserts e into the timeline.
//
// It fails with ErrDuplicateTimestamp if an event already exists at
// e.Timestamp. An event landing after the first invalid event is stored
// without being attempted. Otherwise its change is applied to the state at
// its position; if that fails, AddEvent returns an error wrapping
// ErrInvalidState and the timeline is unchanged. On success the events after
// it are replayed in order until one fails: the insertion may invalidate
// events that depended on what came before, or revalidate events that were
// waiting on it. Neither outcome is an error.
func (t *Timeline) AddEvent(e Event) error {
	idx, found := t.search(e.Timestamp)
	if found {
		return fmt.Errorf("%w: %s", types.ErrDuplicateTimestamp, e.Timestamp)
	}
	e = e.owned()
	events := slices.Insert(slices.Clone(t.events), idx, e)

	v := len(t.skipDiffs)
	if idx > v {
		t.events = events
		t.logger.Debug("event stored past invalid event",
			"timestamp", e.Timestamp, "index", idx, "valid", v)
		return nil
	}

	st, err := t.stateAfter(idx - 1)
	if err != nil {
		return err
	}
	own, err := state.Apply(st, e.Change)
	if err != nil {
		return fmt.Errorf("%w: event at %s: %w", types.ErrInvalidState, e.Timestamp, err)
	}

	diffs := make([]SkipDiff, idx, len(events))
	copy(diffs, t.skipDiffs[:idx])
	diffs = append(diffs, newSkipDiff(diffs, idx, own))
	diffs, st = t.revalidate(events, diffs, idx+1, st)

	t.logger.Debug("event applied",
		"timestamp", e.Timestamp, "index", idx,
		"valid_before", v, "valid_after", len(diffs), "events", len(events))
	t.commit(events, diffs, st)
	return nil
}

// RemoveEvent deletes the event at ts and returns it. The events after it
// are replayed as in AddEvent. It fails with ErrEventNotFound when no event
// is at ts.
func (t *Timeline) RemoveEvent(ts types.Timestamp) (Event, error) {
	idx, found := t.search(ts)
	if !found {
		return Event{}, fmt.Errorf("%w: %s", types.ErrEventNotFound, ts)
	}
	removed := t.events[idx]
	events := slices.Delete(slices.Clone(t.events), idx, idx+1)

	v := len(t.skipDiffs)
	if idx > v {
		t.events = events
		t.logger.Debug("invalid event removed", "timestamp", ts, "index", idx)
		return removed, nil
	}

	st, err := t.stateAfter(idx - 1)
	if err != nil {
		return Event{}, err
	}
	diffs := make([]SkipDiff, idx, len(events))
	copy(diffs, t.skipDiffs[:idx])
	diffs, st = t.revalidate(events, diffs, idx, st)

	t.logger.Debug("event removed",
		"timestamp", ts, "index", idx, "valid_before", v, "valid_after", len(diffs))
	t.commit(events, diffs, st)
	return removed, nil
}

// ReplaceEvent swaps the event at ts for e, which may carry a different
// timestamp. If e is rejected the timeline is left exactly as it was.
func (t *Timeline) ReplaceEvent(ts types.Timestamp, e Event) error {
	saved := *t
	if _, err := t.RemoveEvent(ts); err != nil {
		return err
	}
	if err := t.AddEvent(e); err != nil {
		*t = saved
		return err
	}
	return nil
}

// revalidate replays events[from:] on st, the state after events[from-1],
// appending a skip diff for each event that applies and stopping at the
// first that does not. diffs must hold the skip diffs for events[:from].
func (t *Timeline) revalidate(events []Event, diffs []SkipDiff, from int, st *state.State) ([]SkipDiff, *state.State) {
	for i := from; i < len(events); i++ {
		own, err := state.Apply(st, events[i].Change)
		if err != nil {
			t.logger.Debug("event invalid",
				"timestamp", events[i].Timestamp, "index", i,
				"pending", len(events)-i, "reason", err)
			break
		}
		diffs = append(diffs, newSkipDiff(diffs, i, own))
	}
	return diffs, st
}

// commit installs a new event log, valid prefix and current state. The
// slices are never shared with a previous commit.
func (t *Timeline) commit(events []Event, diffs []SkipDiff, st *state.State) {
	t.events = events
	t.skipDiffs = diffs
	t.state = st
	if len(diffs) > 0 {
		t.timestamp = events[len(diffs)-1].Timestamp
	} else {
		t.timestamp = 0
	}
}

// Verify checks the timeline against a full replay: every valid position
// must reconstruct to the replayed state, and the first invalid event must
// fail to apply. It returns an error wrapping ErrInvalidState on mismatch.
func (t *Timeline) Verify() error {
	replay := state.New(t.registry)
	for i := range t.skipDiffs {
		if _, err := state.Apply(replay, t.events[i].Change); err != nil {
			return fmt.Errorf("%w: valid event at %s does not replay: %w",
				types.ErrInvalidState, t.events[i].Timestamp, err)
		}
		got, err := t.stateAfter(i)
		if err != nil {
			return fmt.Errorf("%w: reconstructing %s: %w", types.ErrInvalidState, t.events[i].Timestamp, err)
		}
		if !got.Equal(replay) {
			return fmt.Errorf("%w: state at %s diverges from replay",
				types.ErrInvalidState, t.events[i].Timestamp)
		}
	}
	if !replay.Equal(t.state) {
		return fmt.Errorf("%w: current state diverges from replay", types.ErrInvalidState)
	}
	if v := len(t.skipDiffs); v < len(t.events) {
		if _, err := state.Apply(replay, t.events[v].Change); err == nil {
			return fmt.Errorf("%w: event at %s applies but is outside the valid prefix",
				types.ErrInvalidState, t.events[v].Timestamp)
		}
	}
	return nil
}
