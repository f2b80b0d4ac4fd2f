// Package paths resolves where tracker keeps its configuration and its
// event journal.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "tracker"

// CWD-relative directory names.
const (
	DefaultConfigDirName = ".tracker"
	DefaultDataDirName   = ".tracker-db"
)

// ConfigFileName is the configuration file inside the config directory.
const ConfigFileName = "config.yaml"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "TRACKER_CONFIG_DIR"
	EnvDataDir   = "TRACKER_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $env/tracker on Linux, falling back to ~/fallback/tracker.
// Other platforms use os.UserConfigDir for both kinds of directory.
func xdgDir(env string, fallback ...string) (string, error) {
	if platformDir.goos != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/tracker (fallback ~/.config/tracker)
// macOS:   ~/Library/Application Support/tracker
// Windows: %APPDATA%/tracker
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific per-user data directory. It
// is not used unless asked for; ResolveDataDir defaults to the working
// directory.
//
// Linux:   $XDG_DATA_HOME/tracker (fallback ~/.local/share/tracker)
// macOS:   ~/Library/Application Support/tracker
// Windows: %APPDATA%/tracker
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > TRACKER_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > configYAMLValue > TRACKER_DATA_DIR env > $(CWD)/.tracker-db.
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	for _, dir := range []string{flag, configYAMLValue, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the path of config.yaml inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}
