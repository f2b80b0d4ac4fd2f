package sqlite

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tracker/pkg/state"
	"github.com/mesh-intelligence/tracker/pkg/timeline"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

func TestEventCodecRoundTrip(t *testing.T) {
	c := state.NewStateChange()
	require.NoError(t, c.AddChange(types.AspectNote, state.NewAddWithID("a", types.NewNote("met the baron", "npc", "plot"))))
	require.NoError(t, c.AddChange(types.AspectNote, state.NewUpdate("b", types.NewNote("old"), types.NewNote("new", "plot"))))
	require.NoError(t, c.AddChange(types.AspectNote, state.NewRemove("c")))
	created := time.Date(2026, 3, 1, 12, 30, 0, 42, time.UTC)
	e := timeline.Event{Timestamp: 120, Created: created, Description: "session 3", Change: c}

	rec, err := encodeEvent(e)
	require.NoError(t, err)
	line, err := json.Marshal(rec)
	require.NoError(t, err)

	var back eventJSON
	require.NoError(t, json.Unmarshal(line, &back))
	got, err := decodeEvent(types.DefaultRegistry(), back)
	require.NoError(t, err)

	assert.Equal(t, e.Timestamp, got.Timestamp)
	assert.True(t, created.Equal(got.Created))
	assert.Equal(t, e.Description, got.Description)
	assert.Equal(t, c.Changes(), got.Change.Changes())
}

func TestEncodeEventWireFormat(t *testing.T) {
	c := state.NewStateChange()
	require.NoError(t, c.AddChange(types.AspectNote, state.NewAddWithID("a", types.NewNote("hi", "x"))))
	require.NoError(t, c.AddChange(types.AspectNote, state.NewRemove("z")))
	rec, err := encodeEvent(timeline.Event{
		Timestamp: 7,
		Created:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Change:    c,
	})
	require.NoError(t, err)
	line, err := json.Marshal(rec)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"timestamp": 7,
		"created": "2026-01-02T03:04:05Z",
		"description": "",
		"changes": [
			{"aspect_type": "note", "op": "add", "aspect_id": "a", "aspect": {"tags": ["x"], "content": "hi"}},
			{"aspect_type": "note", "op": "remove", "aspect_id": "z"}
		]
	}`, string(line))
}

func TestEncodeNilChange(t *testing.T) {
	rec, err := encodeEvent(timeline.Event{Timestamp: 1})
	require.NoError(t, err)
	assert.NotNil(t, rec.Changes)
	assert.Empty(t, rec.Changes)
}

func TestDecodeEventErrors(t *testing.T) {
	reg := types.DefaultRegistry()
	tests := []struct {
		name string
		rec  eventJSON
		want error
	}{
		{
			name: "unknown op",
			rec:  eventJSON{Changes: []changeJSON{{AspectType: "note", Op: "merge", AspectID: "a"}}},
			want: types.ErrUnknownChange,
		},
		{
			name: "unknown aspect type",
			rec:  eventJSON{Changes: []changeJSON{{AspectType: "quest", Op: "remove", AspectID: "a"}}},
			want: types.ErrUnknownAspectType,
		},
		{
			name: "add without body",
			rec:  eventJSON{Changes: []changeJSON{{AspectType: "note", Op: "add", AspectID: "a"}}},
			want: types.ErrInvalidAspect,
		},
		{
			name: "missing id",
			rec:  eventJSON{Changes: []changeJSON{{AspectType: "note", Op: "remove"}}},
			want: types.ErrInvalidAspect,
		},
		{
			name: "same aspect twice",
			rec: eventJSON{Changes: []changeJSON{
				{AspectType: "note", Op: "remove", AspectID: "a"},
				{AspectType: "note", Op: "remove", AspectID: "a"},
			}},
			want: types.ErrAlreadyModified,
		},
		{
			name: "bad created",
			rec:  eventJSON{Created: "yesterday"},
			want: types.ErrInvalidEvent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEvent(reg, tt.rec)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
