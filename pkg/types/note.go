package types

// AspectNote is the registry key of the built-in note aspect.
const AspectNote = "note"

// Note is a free-text campaign note.
type Note struct {
	Tagged  `yaml:",inline"`
	Content string `json:"content" yaml:"content"`
}

// NewNote creates a note with the given content and tags.
func NewNote(content string, tags ...string) *Note {
	return &Note{
		Tagged:  Tagged{TagSet: NewTagSet(tags...)},
		Content: content,
	}
}

// Clone returns a deep copy of the note.
func (n *Note) Clone() Aspect {
	return &Note{
		Tagged:  n.CloneTags(),
		Content: n.Content,
	}
}

// NoteKind is the registry entry for notes.
var NoteKind = AspectKind{
	Name: AspectNote,
	New:  func() Aspect { return &Note{Tagged: Tagged{TagSet: TagSet{}}} },
}
