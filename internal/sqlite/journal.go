package sqlite

import (
	"fmt"

	"github.com/mesh-intelligence/tracker/pkg/timeline"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Append records e. It fails with ErrDuplicateTimestamp when an event is
// already journaled at e.Timestamp. Append does not check that e applies;
// validity belongs to the timeline.
func (b *Backend) Append(e timeline.Event) error {
	rec, err := encodeEvent(e)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrJournalDetached
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := eventExists(tx, rec.Timestamp)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", types.ErrDuplicateTimestamp, e.Timestamp)
	}
	if err := insertEvent(tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.logger.Debug("event appended", "timestamp", e.Timestamp, "changes", len(rec.Changes))
	return b.persistLocked("append", e.Timestamp)
}

// Delete removes the event at ts. It fails with ErrEventNotFound when no
// event is journaled there.
func (b *Backend) Delete(ts types.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrJournalDetached
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	found, err := deleteEvent(tx, int64(ts))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", types.ErrEventNotFound, ts)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.logger.Debug("event deleted", "timestamp", ts)
	return b.persistLocked("delete", ts)
}

// Replace swaps the event at ts for e in one transaction. e may carry a
// different timestamp, which must not collide with another event.
func (b *Backend) Replace(ts types.Timestamp, e timeline.Event) error {
	rec, err := encodeEvent(e)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrJournalDetached
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	found, err := deleteEvent(tx, int64(ts))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", types.ErrEventNotFound, ts)
	}
	exists, err := eventExists(tx, rec.Timestamp)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", types.ErrDuplicateTimestamp, e.Timestamp)
	}
	if err := insertEvent(tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.logger.Debug("event replaced", "from", ts, "to", e.Timestamp)
	return b.persistLocked("replace", e.Timestamp)
}

// Get returns the event at ts, or ErrEventNotFound.
func (b *Backend) Get(ts types.Timestamp) (timeline.Event, error) {
	events, err := b.query(selectEvents+" WHERE timestamp = ?", int64(ts))
	if err != nil {
		return timeline.Event{}, err
	}
	if len(events) == 0 {
		return timeline.Event{}, fmt.Errorf("%w: %s", types.ErrEventNotFound, ts)
	}
	return events[0], nil
}

// List returns every journaled event in timestamp order.
func (b *Backend) List() ([]timeline.Event, error) {
	return b.query(selectEvents + " ORDER BY timestamp")
}

// Range returns the events with from <= timestamp <= to, in timestamp order.
func (b *Backend) Range(from, to types.Timestamp) ([]timeline.Event, error) {
	return b.query(selectEvents+" WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp", int64(from), int64(to))
}

// Touching returns the events whose change targets the given aspect, in
// timestamp order.
func (b *Backend) Touching(aspectType, id string) ([]timeline.Event, error) {
	return b.query(
		"SELECT e.timestamp, e.created_at, e.description, e.changes FROM events e"+
			" JOIN aspect_changes c ON c.timestamp = e.timestamp"+
			" WHERE c.aspect_type = ? AND c.aspect_id = ? ORDER BY e.timestamp",
		aspectType, id)
}

// Load rebuilds a timeline from every journaled event.
func (b *Backend) Load(opts ...timeline.Option) (*timeline.Timeline, error) {
	events, err := b.List()
	if err != nil {
		return nil, err
	}
	tl, err := timeline.Rebuild(b.registry, events, opts...)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("timeline loaded", "events", tl.Len(), "valid", tl.ValidLen())
	return tl, nil
}

func (b *Backend) query(query string, args ...any) ([]timeline.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrJournalDetached
	}

	recs, err := queryRecords(b.db, query, args...)
	if err != nil {
		return nil, err
	}
	events := make([]timeline.Event, 0, len(recs))
	for _, rec := range recs {
		e, err := decodeEvent(b.registry, rec)
		if err != nil {
			return nil, fmt.Errorf("decoding event %d: %w", rec.Timestamp, err)
		}
		events = append(events, e)
	}
	return events, nil
}
