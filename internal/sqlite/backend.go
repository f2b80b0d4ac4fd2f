// Package sqlite implements the event journal: events.jsonl is the source of
// truth and a SQLite database, rebuilt on every Attach, answers queries.
package sqlite

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/tracker/pkg/types"
)

// dbFile is the SQLite index inside the data directory.
const dbFile = "tracker.db"

// Backend is a journal of timeline events.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	registry *types.Registry
	logger   *slog.Logger

	syncStrategy  string
	pendingWrites []pendingWrite
}

// pendingWrite records a deferred journal write for the on_close strategy.
type pendingWrite struct {
	operation string
	timestamp types.Timestamp
}

// NewBackend creates a journal whose aspects are decoded through registry.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(registry *types.Registry) *Backend {
	return &Backend{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Registry returns the aspect registry the journal decodes with.
func (b *Backend) Registry() *types.Registry { return b.registry }

// Attach initializes the backend with the given configuration. It creates
// DataDir if needed, recreates the SQLite index and loads events.jsonl into
// it. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Logger != nil {
		b.logger = config.Logger
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	config.DataDir = dataDir

	// The index is always rebuilt from the journal.
	dbPath := filepath.Join(dataDir, dbFile)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	for _, ddl := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if err := initJSONLFile(dataDir); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.syncStrategy = config.GetSyncStrategy()
	b.pendingWrites = nil

	loaded, err := b.loadJSONL()
	if err != nil {
		db.Close()
		b.db = nil
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.attached = true
	b.logger.Debug("journal attached",
		"data_dir", dataDir, "events", loaded, "sync_strategy", b.syncStrategy)
	return nil
}

// Detach flushes pending writes and closes the index. After Detach every
// operation returns ErrJournalDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.logger.Debug("journal detached", "data_dir", b.config.DataDir)
	return nil
}

// DataDir returns the directory the journal is attached to.
func (b *Backend) DataDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.DataDir
}

// shouldPersistImmediately reports whether events.jsonl is rewritten on
// every write.
func (b *Backend) shouldPersistImmediately() bool {
	return b.syncStrategy == types.SyncImmediate || b.syncStrategy == ""
}

// persistLocked rewrites events.jsonl or queues the write, depending on the
// sync strategy. The caller must hold b.mu for writing.
func (b *Backend) persistLocked(operation string, ts types.Timestamp) error {
	if b.shouldPersistImmediately() {
		return b.writeJournalLocked()
	}
	b.pendingWrites = append(b.pendingWrites, pendingWrite{operation: operation, timestamp: ts})
	b.logger.Debug("journal write queued", "operation", operation, "timestamp", ts, "pending", len(b.pendingWrites))
	return nil
}

// flushPendingWritesLocked rewrites events.jsonl once for every queued
// write. The caller must hold b.mu for writing.
func (b *Backend) flushPendingWritesLocked() error {
	if len(b.pendingWrites) == 0 {
		return nil
	}
	if err := b.writeJournalLocked(); err != nil {
		last := b.pendingWrites[len(b.pendingWrites)-1]
		return fmt.Errorf("flush %s %s: %w", last.operation, last.timestamp, err)
	}
	b.logger.Debug("journal flushed", "writes", len(b.pendingWrites))
	b.pendingWrites = nil
	return nil
}
