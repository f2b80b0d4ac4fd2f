package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tracker/pkg/state"
	"github.com/mesh-intelligence/tracker/pkg/timeline"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

func newEventCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Add, list, remove and move timeline events",
	}
	cmd.AddCommand(newEventAddCmd(a))
	cmd.AddCommand(newEventListCmd(a))
	cmd.AddCommand(newEventRemoveCmd(a))
	cmd.AddCommand(newEventMoveCmd(a))
	return cmd
}

// eventAddFlags holds the flags of "event add".
type eventAddFlags struct {
	at      string
	desc    string
	notes   []string
	tags    []string
	edits   []string
	removes []string
}

func newEventAddCmd(a *app) *cobra.Command {
	var f eventAddFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an event to the timeline",
		Long: `Add an event at the given timestamp. The event's change is built from
--note (add a note), --edit (replace a note's content) and --remove (tombstone
an aspect). The event is rejected if it cannot apply at its place in the
timeline; accepting it may invalidate later events.`,
		Example: `  tracker event add --at 120 --desc "Session 3" --note "Met the baron" --tag npc,plot
  tracker event add --at 140 --edit 0192...=Baron is a lich
  tracker event add --at 150 --remove note:0192...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				return runEventAdd(cmd, s, f)
			})
		},
	}
	cmd.Flags().StringVar(&f.at, "at", "", "timestamp of the event (required)")
	cmd.Flags().StringVar(&f.desc, "desc", "", "event description")
	cmd.Flags().StringArrayVar(&f.notes, "note", nil, "add a note with this content (repeatable)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tags for added and edited notes")
	cmd.Flags().StringArrayVar(&f.edits, "edit", nil, "replace a note's content, as ID=TEXT (repeatable)")
	cmd.Flags().StringArrayVar(&f.removes, "remove", nil, "remove an aspect, as TYPE:ID or ID for notes (repeatable)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func runEventAdd(cmd *cobra.Command, s *session, f eventAddFlags) error {
	at, err := s.calendar.Parse(f.at)
	if err != nil {
		return userError("--at: %w", err)
	}
	change, added, err := buildChange(s, at, f)
	if err != nil {
		return err
	}

	e := timeline.NewEvent(at, f.desc, change)
	if err := s.timeline.AddEvent(e); err != nil {
		return classify(err, "event rejected")
	}
	if err := s.journal.Append(e); err != nil {
		return sysError("append to journal: %w", err)
	}

	out := cmd.OutOrStdout()
	status := "valid"
	if !s.timeline.IsValid(at) {
		status = "pending behind an invalid event"
	}
	fmt.Fprintf(out, "event %s added (%s); %d of %d events valid\n",
		s.calendar.Format(at), status, s.timeline.ValidLen(), s.timeline.Len())
	for _, id := range added {
		fmt.Fprintf(out, "note %s\n", id)
	}
	return nil
}

// buildChange turns the add flags into a state change. It returns the ids
// of the notes it adds.
func buildChange(s *session, at types.Timestamp, f eventAddFlags) (*state.StateChange, []string, error) {
	change := state.NewStateChange()
	var added []string

	for _, text := range f.notes {
		ch := state.NewAdd(types.NewNote(text, f.tags...))
		if err := change.AddChange(types.AspectNote, ch); err != nil {
			return nil, nil, userError("--note: %w", err)
		}
		added = append(added, ch.AspectID())
	}

	if len(f.edits) > 0 {
		before, err := s.timeline.State(at)
		if err != nil {
			return nil, nil, sysError("state at %s: %w", at, err)
		}
		notes, err := before.Store(types.AspectNote)
		if err != nil {
			return nil, nil, sysError("%w", err)
		}
		for _, edit := range f.edits {
			id, text, ok := strings.Cut(edit, "=")
			if !ok || id == "" {
				return nil, nil, userError("--edit %q: expected ID=TEXT", edit)
			}
			prev, ok := notes.Get(id)
			if !ok {
				return nil, nil, userError("--edit: note %s is not live at %s", id, s.calendar.Format(at))
			}
			next := prev.Clone().(*types.Note)
			next.Content = text
			for _, tag := range f.tags {
				next.TagSet.Add(tag)
			}
			if err := change.AddChange(types.AspectNote, state.NewUpdate(id, prev, next)); err != nil {
				return nil, nil, userError("--edit: %w", err)
			}
		}
	}

	for _, ref := range f.removes {
		kind, id, ok := strings.Cut(ref, ":")
		if !ok {
			kind, id = types.AspectNote, ref
		}
		if id == "" {
			return nil, nil, userError("--remove %q: missing id", ref)
		}
		if !s.timeline.Registry().Has(kind) {
			return nil, nil, userError("--remove: %w: %q", types.ErrUnknownAspectType, kind)
		}
		if err := change.AddChange(kind, state.NewRemove(id)); err != nil {
			return nil, nil, userError("--remove: %w", err)
		}
	}
	return change, added, nil
}

// eventRow is one line of "event list".
type eventRow struct {
	Timestamp   types.Timestamp `json:"timestamp"`
	Valid       bool            `json:"valid"`
	Created     time.Time       `json:"created"`
	Description string          `json:"description"`
	Changes     []string        `json:"changes"`
}

func newEventListCmd(a *app) *cobra.Command {
	var (
		jsonOut  bool
		from, to string
		aspect   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events with their validity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				events, err := selectEvents(s, from, to, aspect)
				if err != nil {
					return err
				}
				rows := make([]eventRow, len(events))
				for i, e := range events {
					rows[i] = eventRow{
						Timestamp:   e.Timestamp,
						Valid:       s.timeline.IsValid(e.Timestamp),
						Created:     e.Created,
						Description: e.Description,
						Changes:     describeChange(e.Change),
					}
				}
				return writeEventRows(cmd, s, rows, jsonOut)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().StringVar(&from, "from", "", "earliest timestamp to list")
	cmd.Flags().StringVar(&to, "to", "", "latest timestamp to list")
	cmd.Flags().StringVar(&aspect, "aspect", "", "only events touching TYPE:ID")
	return cmd
}

// selectEvents queries the journal for the requested events.
func selectEvents(s *session, from, to, aspect string) ([]timeline.Event, error) {
	if aspect != "" {
		kind, id, ok := strings.Cut(aspect, ":")
		if !ok || id == "" {
			return nil, userError("--aspect %q: expected TYPE:ID", aspect)
		}
		events, err := s.journal.Touching(kind, id)
		if err != nil {
			return nil, sysError("query journal: %w", err)
		}
		return events, nil
	}
	if from == "" && to == "" {
		events, err := s.journal.List()
		if err != nil {
			return nil, sysError("query journal: %w", err)
		}
		return events, nil
	}

	lo, hi := types.Timestamp(minTimestamp), types.Timestamp(maxTimestamp)
	var err error
	if from != "" {
		if lo, err = s.calendar.Parse(from); err != nil {
			return nil, userError("--from: %w", err)
		}
	}
	if to != "" {
		if hi, err = s.calendar.Parse(to); err != nil {
			return nil, userError("--to: %w", err)
		}
	}
	events, err := s.journal.Range(lo, hi)
	if err != nil {
		return nil, sysError("query journal: %w", err)
	}
	return events, nil
}

const (
	minTimestamp = -1 << 63
	maxTimestamp = 1<<63 - 1
)

// describeChange renders each aspect change as "op type/id".
func describeChange(c *state.StateChange) []string {
	out := []string{}
	if c == nil {
		return out
	}
	for _, tc := range c.Changes() {
		out = append(out, fmt.Sprintf("%s %s/%s", tc.Change.Op(), tc.AspectType, tc.Change.AspectID()))
	}
	return out
}

func writeEventRows(cmd *cobra.Command, s *session, rows []eventRow, jsonOut bool) error {
	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	for _, r := range rows {
		mark := "+"
		if !r.Valid {
			mark = "!"
		}
		fmt.Fprintf(out, "%s %s\t%s\n", mark, s.calendar.Format(r.Timestamp), r.Description)
		for _, c := range r.Changes {
			fmt.Fprintf(out, "    %s\n", c)
		}
	}
	return nil
}

func newEventRemoveCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the event at a timestamp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				ts, err := s.calendar.Parse(at)
				if err != nil {
					return userError("--at: %w", err)
				}
				if _, err := s.timeline.RemoveEvent(ts); err != nil {
					return classify(err, "remove event")
				}
				if err := s.journal.Delete(ts); err != nil {
					return sysError("delete from journal: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "event %s removed; %d of %d events valid\n",
					s.calendar.Format(ts), s.timeline.ValidLen(), s.timeline.Len())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "timestamp of the event (required)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newEventMoveCmd(a *app) *cobra.Command {
	var at, to string
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move an event to another timestamp",
		Long:  "Move an event. The move is rejected, and nothing changes, if the event cannot apply at its new place.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				from, err := s.calendar.Parse(at)
				if err != nil {
					return userError("--at: %w", err)
				}
				dest, err := s.calendar.Parse(to)
				if err != nil {
					return userError("--to: %w", err)
				}
				e, err := s.journal.Get(from)
				if err != nil {
					return classify(err, "move event")
				}
				e.Timestamp = dest
				if err := s.timeline.ReplaceEvent(from, e); err != nil {
					return classify(err, "move rejected")
				}
				if err := s.journal.Replace(from, e); err != nil {
					return sysError("update journal: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "event %s moved to %s; %d of %d events valid\n",
					s.calendar.Format(from), s.calendar.Format(dest), s.timeline.ValidLen(), s.timeline.Len())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "current timestamp of the event (required)")
	cmd.Flags().StringVar(&to, "to", "", "new timestamp (required)")
	_ = cmd.MarkFlagRequired("at")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
