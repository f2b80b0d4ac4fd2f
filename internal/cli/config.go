package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/tracker/internal/paths"
	"github.com/mesh-intelligence/tracker/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend      = "backend"
	cfgKeyDataDir      = "data_dir"
	cfgKeySyncStrategy = "sync_strategy"
	cfgKeyLogLevel     = "log_level"

	envLogLevel = "TRACKER_LOG_LEVEL"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# tracker configuration

# Journal backend
backend: sqlite

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# When events.jsonl is rewritten: immediate or on_close
sync_strategy: immediate

# debug, info, warn or error
log_level: warn
`

// loadConfig reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run. A missing config.yaml is
// not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeySyncStrategy, types.SyncImmediate)
	v.SetDefault(cfgKeyLogLevel, "warn")
	if err := v.BindEnv(cfgKeyLogLevel, envLogLevel); err != nil {
		return nil, err
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in configDir.
func ensureDefaultConfigFile(configDir string) error {
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// journalConfig builds the backend configuration from viper and the
// resolved data directory.
func (a *app) journalConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, a.config.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{
		Backend:      a.config.GetString(cfgKeyBackend),
		DataDir:      dataDir,
		SyncStrategy: a.config.GetString(cfgKeySyncStrategy),
		Logger:       a.logger,
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// newLogger returns a text logger on w at the configured level. verbose
// forces debug.
func newLogger(w io.Writer, level string, verbose bool) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log_level %q: %w", level, err)
	}
	if verbose {
		l = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
