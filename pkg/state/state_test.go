package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tracker/pkg/types"
)

func testRegistry(t *testing.T) *types.Registry {
	t.Helper()
	quest := types.AspectKind{Name: "quest", New: types.NoteKind.New}
	r, err := types.NewRegistry(types.NoteKind, quest)
	require.NoError(t, err)
	return r
}

func TestStateStores(t *testing.T) {
	s := New(testRegistry(t))
	assert.Equal(t, []string{"note", "quest"}, s.Kinds())

	notes, err := s.Store(types.AspectNote)
	require.NoError(t, err)
	assert.Zero(t, notes.Len())

	_, err = s.Store("inventory")
	assert.True(t, errors.Is(err, types.ErrUnknownAspectType))
	assert.True(t, errors.Is(err, types.ErrInvalidAspect))
}

func TestStateCloneAndEqual(t *testing.T) {
	reg := testRegistry(t)
	s := New(reg)
	notes, _ := s.Store(types.AspectNote)
	require.NoError(t, notes.Add("a", types.NewNote("first", "plan")))

	c := s.Clone()
	assert.True(t, c.Equal(s))
	assert.Same(t, s.Registry(), c.Registry())

	cnotes, _ := c.Store(types.AspectNote)
	require.NoError(t, cnotes.RemoveToTombstone("a"))
	assert.False(t, c.Equal(s))
	assert.Equal(t, 1, notes.Len())

	assert.False(t, New(types.DefaultRegistry()).Equal(New(reg)))
	assert.True(t, New(reg).Equal(New(reg)))
}
