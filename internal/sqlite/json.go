package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/tracker/pkg/state"
	"github.com/mesh-intelligence/tracker/pkg/timeline"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// eventJSON is one line of events.jsonl.
type eventJSON struct {
	Timestamp   int64        `json:"timestamp"`
	Created     string       `json:"created"`
	Description string       `json:"description"`
	Changes     []changeJSON `json:"changes"`
}

// changeJSON is one aspect change inside an event.
type changeJSON struct {
	AspectType string          `json:"aspect_type"`
	Op         string          `json:"op"`
	AspectID   string          `json:"aspect_id"`
	Aspect     json.RawMessage `json:"aspect,omitempty"`
	Previous   json.RawMessage `json:"previous,omitempty"`
}

// encodeEvent converts an event to its file record.
func encodeEvent(e timeline.Event) (eventJSON, error) {
	rec := eventJSON{
		Timestamp:   int64(e.Timestamp),
		Created:     e.Created.UTC().Format(time.RFC3339Nano),
		Description: e.Description,
		Changes:     []changeJSON{},
	}
	if e.Change == nil {
		return rec, nil
	}
	for _, tc := range e.Change.Changes() {
		c := changeJSON{
			AspectType: tc.AspectType,
			Op:         tc.Change.Op().String(),
			AspectID:   tc.Change.AspectID(),
		}
		var err error
		if a := tc.Change.Aspect(); a != nil {
			if c.Aspect, err = json.Marshal(a); err != nil {
				return eventJSON{}, fmt.Errorf("encoding %s/%s: %w", tc.AspectType, c.AspectID, err)
			}
		}
		if p := tc.Change.Previous(); p != nil {
			if c.Previous, err = json.Marshal(p); err != nil {
				return eventJSON{}, fmt.Errorf("encoding previous %s/%s: %w", tc.AspectType, c.AspectID, err)
			}
		}
		rec.Changes = append(rec.Changes, c)
	}
	return rec, nil
}

// decodeEvent converts a file record back to an event, decoding aspects
// through registry.
func decodeEvent(registry *types.Registry, rec eventJSON) (timeline.Event, error) {
	e := timeline.Event{
		Timestamp:   types.Timestamp(rec.Timestamp),
		Description: rec.Description,
		Change:      state.NewStateChange(),
	}
	if rec.Created != "" {
		created, err := time.Parse(time.RFC3339Nano, rec.Created)
		if err != nil {
			return timeline.Event{}, fmt.Errorf("%w: created %q: %v", types.ErrInvalidEvent, rec.Created, err)
		}
		e.Created = created
	}
	for _, c := range rec.Changes {
		ch, err := decodeChange(registry, c)
		if err != nil {
			return timeline.Event{}, err
		}
		if err := e.Change.AddChange(c.AspectType, ch); err != nil {
			return timeline.Event{}, err
		}
	}
	return e, nil
}

func decodeChange(registry *types.Registry, c changeJSON) (state.AspectChange, error) {
	op, err := state.ParseOp(c.Op)
	if err != nil {
		return state.AspectChange{}, err
	}
	if c.AspectID == "" {
		return state.AspectChange{}, fmt.Errorf("%w: %s change without aspect id", types.ErrInvalidAspect, c.Op)
	}
	switch op {
	case state.OpAdd:
		a, err := decodeAspect(registry, c.AspectType, c.Aspect)
		if err != nil {
			return state.AspectChange{}, err
		}
		return state.NewAddWithID(c.AspectID, a), nil
	case state.OpUpdate:
		next, err := decodeAspect(registry, c.AspectType, c.Aspect)
		if err != nil {
			return state.AspectChange{}, err
		}
		prev, err := decodeAspect(registry, c.AspectType, c.Previous)
		if err != nil {
			return state.AspectChange{}, err
		}
		return state.NewUpdate(c.AspectID, prev, next), nil
	case state.OpRemove:
		if !registry.Has(c.AspectType) {
			return state.AspectChange{}, fmt.Errorf("%w: %q", types.ErrUnknownAspectType, c.AspectType)
		}
		return state.NewRemove(c.AspectID), nil
	default:
		return state.AspectChange{}, fmt.Errorf("%w: %v", types.ErrUnknownChange, op)
	}
}

func decodeAspect(registry *types.Registry, aspectType string, data json.RawMessage) (types.Aspect, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s change without aspect body", types.ErrInvalidAspect, aspectType)
	}
	return registry.Decode(aspectType, data)
}
