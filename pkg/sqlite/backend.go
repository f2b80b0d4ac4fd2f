// Package sqlite provides the public constructor for the SQLite event
// journal while keeping its implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/tracker/internal/sqlite"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

// Journal is the SQLite-backed event journal.
type Journal = sqlite.Backend

// NewBackend creates a journal that decodes aspects through registry. The
// journal is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	journal := sqlite.NewBackend(types.DefaultRegistry())
//	err := journal.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".tracker-db",
//	})
//	defer journal.Detach()
//	tl, err := journal.Load()
func NewBackend(registry *types.Registry) *Journal {
	return sqlite.NewBackend(registry)
}
