package types

import (
	"errors"
	"log/slog"
)

// Config holds backend selection and parameters for attaching a journal.
type Config struct {
	Backend      string `json:"backend" yaml:"backend"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	SyncStrategy string `json:"sync_strategy,omitempty" yaml:"sync_strategy,omitempty"`

	// Logger receives backend diagnostics. Nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Sync strategies control when events.jsonl is rewritten.
const (
	// SyncImmediate rewrites the file on every write (the default).
	SyncImmediate = "immediate"

	// SyncOnClose queues writes and flushes them on Detach.
	SyncOnClose = "on_close"
)

// Config validation errors.
var (
	ErrBackendEmpty        = errors.New("backend must not be empty")
	ErrBackendUnknown      = errors.New("unknown backend")
	ErrSyncStrategyUnknown = errors.New("unknown sync strategy")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	switch c.SyncStrategy {
	case "", SyncImmediate, SyncOnClose:
	default:
		return ErrSyncStrategyUnknown
	}
	return nil
}

// GetSyncStrategy returns the effective sync strategy.
func (c Config) GetSyncStrategy() string {
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}
