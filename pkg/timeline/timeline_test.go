package timeline

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tracker/pkg/state"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// noteEvent builds an event from note changes.
func noteEvent(t *testing.T, at types.Timestamp, changes ...state.AspectChange) Event {
	t.Helper()
	c := state.NewStateChange()
	for _, ch := range changes {
		require.NoError(t, c.AddChange(types.AspectNote, ch))
	}
	return NewEvent(at, "", c)
}

// noteIDs returns the live note ids in the timeline state at ts.
func noteIDs(t *testing.T, tl *Timeline, at types.Timestamp) []string {
	t.Helper()
	st, err := tl.State(at)
	require.NoError(t, err)
	notes, err := st.Store(types.AspectNote)
	require.NoError(t, err)
	return notes.IDs()
}

// snapshot is a deep copy of everything AddEvent may touch.
type snapshot struct {
	events    []Event
	timestamp types.Timestamp
	state     *state.State
	skipDiffs []SkipDiff
}

func takeSnapshot(tl *Timeline) snapshot {
	return snapshot{
		events:    slices.Clone(tl.events),
		timestamp: tl.timestamp,
		state:     tl.state.Clone(),
		skipDiffs: slices.Clone(tl.skipDiffs),
	}
}

func assertUnchanged(t *testing.T, want snapshot, tl *Timeline) {
	t.Helper()
	assert.Equal(t, want.events, tl.events)
	assert.Equal(t, want.timestamp, tl.timestamp)
	assert.True(t, want.state.Equal(tl.state), "state changed")
	assert.Equal(t, want.skipDiffs, tl.skipDiffs)
}

func sorted(ids ...string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func TestEmptyTimeline(t *testing.T) {
	reg := types.DefaultRegistry()
	tl := New(reg)

	for _, at := range []types.Timestamp{-100, 0, 100} {
		st, err := tl.State(at)
		require.NoError(t, err)
		assert.True(t, st.Equal(state.New(reg)))
	}
	_, ok := tl.Timestamp()
	assert.False(t, ok)
	assert.Zero(t, tl.Len())
	require.NoError(t, tl.Verify())
}

func TestScenarioSingleNote(t *testing.T) {
	tl := New(types.DefaultRegistry())
	add := state.NewAdd(types.NewNote("hello", "plan"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, add)))

	st, err := tl.State(10)
	require.NoError(t, err)
	notes, _ := st.Store(types.AspectNote)
	got, ok := notes.Get(add.AspectID())
	require.True(t, ok)
	assert.Equal(t, types.NewNote("hello", "plan"), got)
	assert.Equal(t, []string{add.AspectID()}, notes.TaggedWith("plan"))

	assert.Empty(t, noteIDs(t, tl, 5))

	ts, ok := tl.Timestamp()
	assert.True(t, ok)
	assert.Equal(t, types.Timestamp(10), ts)
}

func TestScenarioAddThenRemove(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewRemove(x.AspectID()))))

	assert.Equal(t, []string{x.AspectID()}, noteIDs(t, tl, 15))
	assert.Empty(t, noteIDs(t, tl, 25))

	st, err := tl.State(25)
	require.NoError(t, err)
	notes, _ := st.Store(types.AspectNote)
	_, tomb := notes.Tombstoned(x.AspectID())
	assert.True(t, tomb)
}

func TestScenarioInsertBeforeFirst(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewRemove(x.AspectID()))))

	y := state.NewAdd(types.NewNote("Y"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 5, y)))

	assert.Equal(t, []string{y.AspectID()}, noteIDs(t, tl, 7))
	assert.Equal(t, sorted(x.AspectID(), y.AspectID()), noteIDs(t, tl, 15))
	assert.Equal(t, []string{y.AspectID()}, noteIDs(t, tl, 25))
	assert.Empty(t, noteIDs(t, tl, 4))
	assert.Equal(t, 3, tl.ValidLen())
	require.NoError(t, tl.Verify())
}

func TestScenarioRejectedRemoval(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewRemove(x.AspectID()))))
	require.NoError(t, tl.AddEvent(noteEvent(t, 5, state.NewAdd(types.NewNote("Y")))))
	before := takeSnapshot(tl)

	err := tl.AddEvent(noteEvent(t, 12, state.NewRemove(types.NewAspectID())))
	assert.True(t, errors.Is(err, types.ErrInvalidState), "got %v", err)
	assertUnchanged(t, before, tl)
}

func TestAddEventRejectsDuplicateTimestamp(t *testing.T) {
	tl := New(types.DefaultRegistry())
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, state.NewAdd(types.NewNote("X")))))
	before := takeSnapshot(tl)

	err := tl.AddEvent(noteEvent(t, 10, state.NewAdd(types.NewNote("Y"))))
	assert.True(t, errors.Is(err, types.ErrDuplicateTimestamp))
	assert.True(t, errors.Is(err, types.ErrInvalidEvent))
	assertUnchanged(t, before, tl)
}

func TestAddEventRejectsAtEveryPosition(t *testing.T) {
	tl := New(types.DefaultRegistry())
	for i := 1; i <= 9; i++ {
		require.NoError(t, tl.AddEvent(noteEvent(t, types.Timestamp(i*10), state.NewAdd(types.NewNote("n")))))
	}
	before := takeSnapshot(tl)

	for at := types.Timestamp(5); at <= 105; at += 10 {
		err := tl.AddEvent(noteEvent(t, at, state.NewRemove("missing")))
		assert.True(t, errors.Is(err, types.ErrInvalidState), "at %s: %v", at, err)
		assertUnchanged(t, before, tl)
	}
}

func TestAddEventRejectsUnknownAspectType(t *testing.T) {
	tl := New(types.DefaultRegistry())
	before := takeSnapshot(tl)

	c := state.NewStateChange()
	require.NoError(t, c.AddChange("inventory", state.NewAdd(types.NewNote("sword"))))
	err := tl.AddEvent(NewEvent(1, "", c))
	assert.True(t, errors.Is(err, types.ErrInvalidState))
	assert.True(t, errors.Is(err, types.ErrUnknownAspectType))
	assertUnchanged(t, before, tl)
}

func TestInsertionInvalidatesSuffix(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X", "plan"))
	y := state.NewAdd(types.NewNote("Y"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewUpdate(x.AspectID(), types.NewNote("X", "plan"), types.NewNote("X2", "done")))))
	require.NoError(t, tl.AddEvent(noteEvent(t, 30, y)))
	require.Equal(t, 3, tl.ValidLen())

	// removing X at 15 makes the update at 20, and everything after it, invalid
	require.NoError(t, tl.AddEvent(noteEvent(t, 15, state.NewRemove(x.AspectID()))))
	assert.Equal(t, 4, tl.Len())
	assert.Equal(t, 2, tl.ValidLen())
	assert.True(t, tl.IsValid(15))
	assert.False(t, tl.IsValid(20))
	assert.False(t, tl.IsValid(30))
	ts, _ := tl.Timestamp()
	assert.Equal(t, types.Timestamp(15), ts)

	assert.Empty(t, noteIDs(t, tl, 35), "invalid events do not contribute to state")
	assert.Equal(t, []string{x.AspectID()}, noteIDs(t, tl, 12))
	require.NoError(t, tl.Verify())
}

func TestEventsPastInvalidAreStoredUnattempted(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewUpdate(x.AspectID(), types.NewNote("X"), types.NewNote("X2")))))
	require.NoError(t, tl.AddEvent(noteEvent(t, 15, state.NewRemove(x.AspectID()))))
	require.Equal(t, 2, tl.ValidLen())

	// would fail if attempted, but lands after the first invalid event
	require.NoError(t, tl.AddEvent(noteEvent(t, 40, state.NewRemove("missing"))))
	assert.Equal(t, 4, tl.Len())
	assert.Equal(t, 2, tl.ValidLen())

	// lands at the valid boundary, so it is attempted
	err := tl.AddEvent(noteEvent(t, 18, state.NewRemove("missing")))
	assert.True(t, errors.Is(err, types.ErrInvalidState))

	z := state.NewAdd(types.NewNote("Z"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 17, z)))
	assert.Equal(t, 3, tl.ValidLen())
	assert.Equal(t, []string{z.AspectID()}, noteIDs(t, tl, 100))
	require.NoError(t, tl.Verify())
}

func TestRemoveEventRevalidatesSuffix(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X"))
	y := state.NewAdd(types.NewNote("Y"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewUpdate(x.AspectID(), types.NewNote("X"), types.NewNote("X2")))))
	require.NoError(t, tl.AddEvent(noteEvent(t, 30, y)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 15, state.NewRemove(x.AspectID()))))
	require.Equal(t, 2, tl.ValidLen())

	removed, err := tl.RemoveEvent(15)
	require.NoError(t, err)
	assert.Equal(t, types.Timestamp(15), removed.Timestamp)
	assert.Equal(t, 3, tl.ValidLen())
	assert.Equal(t, sorted(x.AspectID(), y.AspectID()), noteIDs(t, tl, 30))

	st, err := tl.State(25)
	require.NoError(t, err)
	notes, _ := st.Store(types.AspectNote)
	got, _ := notes.Get(x.AspectID())
	assert.Equal(t, "X2", got.(*types.Note).Content)
	require.NoError(t, tl.Verify())

	_, err = tl.RemoveEvent(15)
	assert.True(t, errors.Is(err, types.ErrEventNotFound))
}

func TestRemoveFirstInvalidEventRetriesNext(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X"))
	y := state.NewAdd(types.NewNote("Y"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewUpdate(x.AspectID(), types.NewNote("X"), types.NewNote("X2")))))
	require.NoError(t, tl.AddEvent(noteEvent(t, 15, state.NewRemove(x.AspectID()))))
	require.NoError(t, tl.AddEvent(noteEvent(t, 30, y)))
	require.Equal(t, 2, tl.ValidLen())

	_, err := tl.RemoveEvent(20)
	require.NoError(t, err)
	assert.Equal(t, 3, tl.ValidLen())
	assert.Equal(t, []string{y.AspectID()}, noteIDs(t, tl, 30))
	require.NoError(t, tl.Verify())
}

func TestReplaceEvent(t *testing.T) {
	tl := New(types.DefaultRegistry())
	x := state.NewAdd(types.NewNote("X"))
	require.NoError(t, tl.AddEvent(noteEvent(t, 10, x)))
	require.NoError(t, tl.AddEvent(noteEvent(t, 20, state.NewRemove(x.AspectID()))))

	// move the removal earlier
	require.NoError(t, tl.ReplaceEvent(20, noteEvent(t, 12, state.NewRemove(x.AspectID()))))
	assert.Empty(t, noteIDs(t, tl, 15))
	assert.False(t, tl.IsValid(20))
	assert.True(t, tl.IsValid(12))

	// moving it before the add is rejected and leaves everything in place
	before := takeSnapshot(tl)
	err := tl.ReplaceEvent(12, noteEvent(t, 5, state.NewRemove(x.AspectID())))
	assert.True(t, errors.Is(err, types.ErrInvalidState))
	assertUnchanged(t, before, tl)

	err = tl.ReplaceEvent(99, noteEvent(t, 5))
	assert.True(t, errors.Is(err, types.ErrEventNotFound))
	assertUnchanged(t, before, tl)
}

func TestAddEventOwnsChange(t *testing.T) {
	tl := New(types.DefaultRegistry())
	c := state.NewStateChange()
	x := state.NewAdd(types.NewNote("X"))
	require.NoError(t, c.AddChange(types.AspectNote, x))
	require.NoError(t, tl.AddEvent(NewEvent(10, "first note", c)))

	require.NoError(t, c.RemoveChange(types.AspectNote, x.AspectID()))
	assert.Equal(t, 1, tl.Events()[0].Change.Len())
	require.NoError(t, tl.Verify())
}

func TestNilChangeIsEmpty(t *testing.T) {
	tl := New(types.DefaultRegistry())
	require.NoError(t, tl.AddEvent(Event{Timestamp: 3, Description: "session start"}))
	assert.Equal(t, 1, tl.ValidLen())
	assert.NotNil(t, tl.Events()[0].Change)
	require.NoError(t, tl.Verify())
}

func TestRebuild(t *testing.T) {
	x := state.NewAdd(types.NewNote("X"))
	events := []Event{
		noteEvent(t, 30, state.NewAdd(types.NewNote("Y"))),
		noteEvent(t, 20, state.NewUpdate(x.AspectID(), types.NewNote("X"), types.NewNote("X2"))),
		noteEvent(t, 10, x),
		noteEvent(t, 15, state.NewRemove(x.AspectID())),
	}

	tl, err := Rebuild(types.DefaultRegistry(), events)
	require.NoError(t, err)
	assert.Equal(t, 4, tl.Len())
	assert.Equal(t, 2, tl.ValidLen())
	got := tl.Events()
	assert.True(t, slices.IsSortedFunc(got, func(a, b Event) int { return a.Timestamp.Compare(b.Timestamp) }))
	require.NoError(t, tl.Verify())

	events = append(events, noteEvent(t, 10))
	_, err = Rebuild(types.DefaultRegistry(), events)
	assert.True(t, errors.Is(err, types.ErrDuplicateTimestamp))
}

func TestSkipDiffLayout(t *testing.T) {
	tl := New(types.DefaultRegistry())
	for i := 0; i < 16; i++ {
		require.NoError(t, tl.AddEvent(noteEvent(t, types.Timestamp(i), state.NewAdd(types.NewNote("n")))))
	}
	wantBase := []int{-1, -1, 1, -1, 3, 3, 5, -1, 7, 7, 9, 7, 11, 11, 13, -1}
	require.Len(t, tl.skipDiffs, 16)
	for i, sd := range tl.skipDiffs {
		assert.Equal(t, wantBase[i], sd.Base, "position %d", i)
		assert.Equal(t, i-sd.Base, sd.Span.Len(), "position %d spans one note per event", i)
	}
	for i := 0; i < 16; i++ {
		assert.Len(t, noteIDs(t, tl, types.Timestamp(i)), i+1)
	}
	require.NoError(t, tl.Verify())
}
