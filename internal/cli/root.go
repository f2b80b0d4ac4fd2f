// Package cli implements the tracker command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/tracker/internal/paths"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// userError marks err as caused by the user's input.
func userError(format string, args ...any) error {
	return &exitError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

// sysError marks err as a failure of the environment or the journal.
func sysError(format string, args ...any) error {
	return &exitError{code: exitSysError, err: fmt.Errorf(format, args...)}
}

// exitCode returns the exit code for an error returned by a command.
// Errors not produced by userError or sysError are flag and argument
// errors from cobra.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// app holds global flag values and what PersistentPreRunE loads from them.
type app struct {
	configDir string
	dataDir   string
	verbose   bool

	config *viper.Viper
	logger *slog.Logger
}

// NewRootCmd creates the top-level "tracker" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	root := &cobra.Command{
		Use:   "tracker",
		Short: "An event-sourced campaign timeline",
		Long: "Tracker records campaign events on a timeline and answers what the\n" +
			"world looked like at any moment, even after earlier events are edited.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $"+paths.EnvConfigDir+" or the platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newEventCmd(a))
	root.AddCommand(newStateCmd(a))
	root.AddCommand(newVerifyCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// load reads config.yaml and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysError("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysError("%w", err)
	}
	a.config = v

	logger, err := newLogger(cmd.ErrOrStderr(), v.GetString(cfgKeyLogLevel), a.verbose)
	if err != nil {
		return userError("%w", err)
	}
	a.logger = logger
	return nil
}
