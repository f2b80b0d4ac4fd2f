package state

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Store holds the aspects of one aspect type.
//
// An id is either live, tombstoned, or unknown; never both live and
// tombstoned. Every id in a tag bucket belongs to a live aspect carrying that
// tag, and empty buckets are pruned. Removals tolerate a tag index that has
// drifted from the live table: missing buckets or memberships are skipped
// rather than reported.
type Store struct {
	live       map[string]types.Aspect
	tagIndex   map[string]map[string]struct{}
	tombstones map[string]types.Aspect
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		live:       make(map[string]types.Aspect),
		tagIndex:   make(map[string]map[string]struct{}),
		tombstones: make(map[string]types.Aspect),
	}
}

// Add inserts aspect under id. It fails with ErrAlreadyExists if id is live
// or tombstoned. The store keeps aspect as given; callers pass a clone.
func (s *Store) Add(id string, aspect types.Aspect) error {
	if _, ok := s.live[id]; ok {
		return fmt.Errorf("%w: %s is live", types.ErrAlreadyExists, id)
	}
	if _, ok := s.tombstones[id]; ok {
		return fmt.Errorf("%w: %s is tombstoned", types.ErrAlreadyExists, id)
	}
	s.live[id] = aspect
	s.indexTags(id, aspect)
	return nil
}

// RemoveToTombstone moves a live aspect to the tombstone table.
func (s *Store) RemoveToTombstone(id string) error {
	aspect, ok := s.live[id]
	if !ok {
		return fmt.Errorf("%w: cannot remove %s", types.ErrNotFound, id)
	}
	s.unindexTags(id, aspect)
	delete(s.live, id)
	s.tombstones[id] = aspect
	return nil
}

// RestoreFromTombstone moves a tombstoned aspect back to the live table.
func (s *Store) RestoreFromTombstone(id string) error {
	aspect, ok := s.tombstones[id]
	if !ok {
		return fmt.Errorf("%w: %s is not tombstoned", types.ErrNotFound, id)
	}
	if _, live := s.live[id]; live {
		return fmt.Errorf("%w: %s is already live", types.ErrNotFound, id)
	}
	delete(s.tombstones, id)
	s.live[id] = aspect
	s.indexTags(id, aspect)
	return nil
}

// RemoveFromLive deletes a live aspect without tombstoning it. It is the
// inverse of Add.
func (s *Store) RemoveFromLive(id string) error {
	aspect, ok := s.live[id]
	if !ok {
		return fmt.Errorf("%w: cannot revert add of %s", types.ErrNotFound, id)
	}
	s.unindexTags(id, aspect)
	delete(s.live, id)
	return nil
}

// Replace swaps the live aspect under id for aspect, re-indexing tags, and
// returns the aspect it replaced.
func (s *Store) Replace(id string, aspect types.Aspect) (types.Aspect, error) {
	prev, ok := s.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: cannot update %s", types.ErrNotFound, id)
	}
	s.unindexTags(id, prev)
	s.live[id] = aspect
	s.indexTags(id, aspect)
	return prev, nil
}

func (s *Store) indexTags(id string, aspect types.Aspect) {
	for tag := range aspect.Tags() {
		bucket, ok := s.tagIndex[tag]
		if !ok {
			bucket = make(map[string]struct{})
			s.tagIndex[tag] = bucket
		}
		bucket[id] = struct{}{}
	}
}

func (s *Store) unindexTags(id string, aspect types.Aspect) {
	for tag := range aspect.Tags() {
		bucket, ok := s.tagIndex[tag]
		if !ok {
			continue
		}
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(s.tagIndex, tag)
		}
	}
}

// Get returns a clone of the live aspect under id.
func (s *Store) Get(id string) (types.Aspect, bool) {
	a, ok := s.live[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Tombstoned returns a clone of the removed aspect under id.
func (s *Store) Tombstoned(id string) (types.Aspect, bool) {
	a, ok := s.tombstones[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Len returns the number of live aspects.
func (s *Store) Len() int { return len(s.live) }

// IDs returns the live aspect ids in sorted order.
func (s *Store) IDs() []string {
	return sortedKeys(s.live)
}

// Tags returns every indexed tag in sorted order.
func (s *Store) Tags() []string {
	return sortedKeys(s.tagIndex)
}

// TaggedWith returns the ids of live aspects carrying tag, sorted.
func (s *Store) TaggedWith(tag string) []string {
	return sortedKeys(s.tagIndex[tag])
}

// MatchTags returns the ids of live aspects carrying at least one tag that
// matches the glob pattern, sorted. Tags are matched like slash-separated
// paths, so "quest/*" matches "quest/main" and "quest/**" matches any depth.
func (s *Store) MatchTags(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad tag pattern %q", types.ErrInvalidAspect, pattern)
	}
	ids := make(map[string]struct{})
	for tag, bucket := range s.tagIndex {
		if ok, _ := doublestar.Match(pattern, tag); !ok {
			continue
		}
		for id := range bucket {
			ids[id] = struct{}{}
		}
	}
	return sortedKeys(ids), nil
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	out := &Store{
		live:       make(map[string]types.Aspect, len(s.live)),
		tagIndex:   make(map[string]map[string]struct{}, len(s.tagIndex)),
		tombstones: make(map[string]types.Aspect, len(s.tombstones)),
	}
	for id, a := range s.live {
		out.live[id] = a.Clone()
	}
	for tag, bucket := range s.tagIndex {
		c := make(map[string]struct{}, len(bucket))
		for id := range bucket {
			c[id] = struct{}{}
		}
		out.tagIndex[tag] = c
	}
	for id, a := range s.tombstones {
		out.tombstones[id] = a.Clone()
	}
	return out
}

// Equal reports whether both stores hold the same live aspects, tag index
// and tombstones.
func (s *Store) Equal(o *Store) bool {
	return reflect.DeepEqual(s.live, o.live) &&
		reflect.DeepEqual(s.tagIndex, o.tagIndex) &&
		reflect.DeepEqual(s.tombstones, o.tombstones)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
