// Package timeline keeps the chronological log of campaign events and
// answers "what was the state at time T?" for any T.
//
// Events are kept sorted by timestamp. The longest run of events, from the
// start, whose changes apply in sequence is the valid prefix; the timeline
// materializes the state after its last event and keeps one skip diff per
// valid position. Position i covers events (i-lowbit(i+1), i], so reaching
// any earlier state takes a logarithmic number of reverts instead of a full
// replay. Events past the valid prefix stay in the log and are retried
// whenever an insertion or removal lands before them.
//
// A Timeline is not safe for concurrent use. State may run concurrently with
// itself but not with AddEvent, RemoveEvent or ReplaceEvent.
package timeline
