package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/tracker/pkg/state"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Output formats for "state".
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// aspectView is one live aspect in "state" output.
type aspectView struct {
	ID     string       `json:"id" yaml:"id"`
	Aspect types.Aspect `json:"aspect" yaml:"aspect"`
}

// stateView is the "state" output: live aspects grouped by type.
type stateView struct {
	At      string                  `json:"at" yaml:"at"`
	Aspects map[string][]aspectView `json:"aspects" yaml:"aspects"`
}

func newStateCmd(a *app) *cobra.Command {
	var at, tag, format string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the state at a timestamp",
		Long: `Show every live aspect at the given timestamp, or after the newest valid
event when --at is omitted. --tag filters by a glob over tags, where "/"
separates tag segments: quest/* or quest/**.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatJSON, formatYAML:
			default:
				return userError("--format %q: expected text, json or yaml", format)
			}
			return a.withSession(func(s *session) error {
				st := s.timeline.Current()
				label := "current"
				if at != "" {
					ts, err := s.calendar.Parse(at)
					if err != nil {
						return userError("--at: %w", err)
					}
					if st, err = s.timeline.State(ts); err != nil {
						return sysError("state at %s: %w", at, err)
					}
					label = s.calendar.Format(ts)
				}
				view, err := buildStateView(st, label, tag)
				if err != nil {
					return err
				}
				return writeStateView(cmd, view, format)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "timestamp (default: after the newest valid event)")
	cmd.Flags().StringVar(&tag, "tag", "", "only aspects with a tag matching this glob")
	cmd.Flags().StringVarP(&format, "format", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func buildStateView(st *state.State, label, pattern string) (stateView, error) {
	view := stateView{At: label, Aspects: make(map[string][]aspectView)}
	for _, kind := range st.Kinds() {
		store, err := st.Store(kind)
		if err != nil {
			return stateView{}, sysError("%w", err)
		}
		ids := store.IDs()
		if pattern != "" {
			if ids, err = store.MatchTags(pattern); err != nil {
				return stateView{}, userError("--tag: %w", err)
			}
		}
		views := make([]aspectView, 0, len(ids))
		for _, id := range ids {
			a, _ := store.Get(id)
			views = append(views, aspectView{ID: id, Aspect: a})
		}
		view.Aspects[kind] = views
	}
	return view, nil
}

func writeStateView(cmd *cobra.Command, view stateView, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(out, "state at %s\n", view.At)
	kinds := make([]string, 0, len(view.Aspects))
	for kind := range view.Aspects {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(out, "%s (%d)\n", kind, len(view.Aspects[kind]))
		for _, v := range view.Aspects[kind] {
			fmt.Fprintf(out, "  %s  %s\n", v.ID, summarize(v.Aspect))
		}
	}
	return nil
}

// summarize renders an aspect on one line.
func summarize(a types.Aspect) string {
	tags := ""
	if t := a.Tags(); t.Len() > 0 {
		tags = " [" + strings.Join(t.Slice(), ", ") + "]"
	}
	if n, ok := a.(*types.Note); ok {
		return n.Content + tags
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Sprintf("%T", a) + tags
	}
	return string(data)
}
