package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	quest := AspectKind{Name: "quest", New: func() Aspect { return NewNote("") }}

	tests := []struct {
		name    string
		kinds   []AspectKind
		want    []string
		wantErr error
	}{
		{name: "default kinds", kinds: []AspectKind{NoteKind}, want: []string{"note"}},
		{name: "sorted names", kinds: []AspectKind{quest, NoteKind}, want: []string{"note", "quest"}},
		{name: "empty registry", kinds: nil, want: []string{}},
		{name: "duplicate name", kinds: []AspectKind{NoteKind, NoteKind}, wantErr: ErrInvalidAspect},
		{name: "missing constructor", kinds: []AspectKind{{Name: "broken"}}, wantErr: ErrInvalidAspect},
		{name: "missing name", kinds: []AspectKind{{New: NoteKind.New}}, wantErr: ErrInvalidAspect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.kinds...)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, r.Kinds())
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()
	assert.True(t, r.Has(AspectNote))
	assert.False(t, r.Has("quest"))

	k, err := r.Lookup(AspectNote)
	require.NoError(t, err)
	assert.Equal(t, AspectNote, k.Name)

	_, err = r.Lookup("quest")
	assert.True(t, errors.Is(err, ErrUnknownAspectType))
	assert.True(t, errors.Is(err, ErrInvalidAspect))

	_, err = r.Decode("quest", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownAspectType))

	_, err = r.Decode(AspectNote, []byte(`[`))
	assert.True(t, errors.Is(err, ErrInvalidAspect))
}

func TestNewAspectIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewAspectID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
