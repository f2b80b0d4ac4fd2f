// Package state holds campaign state and the reversible changes applied to
// it.
//
// A State is a fixed set of Stores, one per registered aspect type. A Store
// keeps live aspects, a tag-to-id inverted index, and tombstones for removed
// aspects so every removal can be reverted exactly. Changes come in three
// kinds (add, update, remove), each a forward/backward pair, and are batched
// into a StateChange that applies additions, then updates, then removals.
//
// Apply wraps StateChange.ApplyToState with all-or-nothing semantics and
// returns a Diff recording each touched entry before and after. Diffs compose,
// which is what the timeline's skip diffs are made of.
package state
