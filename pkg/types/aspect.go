package types

import (
	"encoding/json"
	"slices"
)

// Aspect is a single tagged fact in campaign state, such as a note. Aspects
// are immutable by convention: once handed to a store, the store owns its
// copy and callers only ever see clones.
type Aspect interface {
	// Tags returns the aspect's tag set. Callers must not modify it.
	Tags() TagSet

	// Clone returns a deep copy of the aspect.
	Clone() Aspect
}

// TagSet is an unordered set of unique string tags.
type TagSet map[string]struct{}

// NewTagSet returns a set holding the given tags. Empty strings are ignored.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, tag := range tags {
		s.Add(tag)
	}
	return s
}

// Add inserts tag into the set.
func (s TagSet) Add(tag string) {
	if tag == "" {
		return
	}
	s[tag] = struct{}{}
}

// Remove deletes tag from the set.
func (s TagSet) Remove(tag string) { delete(s, tag) }

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Len returns the number of tags.
func (s TagSet) Len() int { return len(s) }

// Slice returns the tags in sorted order.
func (s TagSet) Slice() []string {
	out := make([]string, 0, len(s))
	for tag := range s {
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

// Clone returns a copy of the set. The copy is never nil.
func (s TagSet) Clone() TagSet {
	out := make(TagSet, len(s))
	for tag := range s {
		out[tag] = struct{}{}
	}
	return out
}

// MarshalJSON writes the set as a sorted array.
func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON reads the set from an array of strings. null yields an
// empty set.
func (s *TagSet) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewTagSet(tags...)
	return nil
}

// MarshalYAML writes the set as a sorted sequence.
func (s TagSet) MarshalYAML() (any, error) {
	return s.Slice(), nil
}

// Tagged carries the tag set every aspect has. Embedding it provides the
// Tags half of the Aspect contract.
type Tagged struct {
	TagSet TagSet `json:"tags" yaml:"tags"`
}

// Tags returns the embedded tag set.
func (t Tagged) Tags() TagSet { return t.TagSet }

// CloneTags returns a Tagged with a copied tag set.
func (t Tagged) CloneTags() Tagged { return Tagged{TagSet: t.TagSet.Clone()} }
