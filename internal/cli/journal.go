package cli

import (
	"errors"

	"github.com/mesh-intelligence/tracker/internal/sqlite"
	"github.com/mesh-intelligence/tracker/pkg/timeline"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// session is an attached journal and the timeline loaded from it.
type session struct {
	journal  *sqlite.Backend
	timeline *timeline.Timeline
	calendar types.Calendar
}

// withSession attaches the journal, loads the timeline, runs fn and
// detaches. A detach failure is reported when fn succeeded.
func (a *app) withSession(fn func(s *session) error) (err error) {
	cfg, err := a.journalConfig()
	if err != nil {
		return userError("%w", err)
	}
	journal := sqlite.NewBackend(types.DefaultRegistry())
	if err := journal.Attach(cfg); err != nil {
		return sysError("attach journal: %w", err)
	}
	defer func() {
		if derr := journal.Detach(); derr != nil && err == nil {
			err = sysError("detach journal: %w", derr)
		}
	}()

	tl, err := journal.Load(timeline.WithLogger(a.logger))
	if err != nil {
		return sysError("load timeline: %w", err)
	}
	return fn(&session{journal: journal, timeline: tl, calendar: types.TickCalendar{}})
}

// classify maps a timeline or journal error to an exit code: rejected
// events and unknown timestamps are the user's; everything else is not.
func classify(err error, action string) error {
	if errors.Is(err, types.ErrInvalidState) || errors.Is(err, types.ErrInvalidEvent) || errors.Is(err, types.ErrInvalidAspect) {
		return userError("%s: %w", action, err)
	}
	return sysError("%s: %w", action, err)
}
