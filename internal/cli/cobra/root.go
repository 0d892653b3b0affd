// Package cobra provides the Cobra-based CLI command tree for extpipe.
package cobra

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/logging"
	"github.com/NielsdaWheelz/extpipe/internal/tty"
	"github.com/NielsdaWheelz/extpipe/internal/version"
)

// GlobalOpts holds global options parsed before subcommand dispatch.
type GlobalOpts struct {
	Verbose bool
}

// globalOpts stores the parsed global options for access by subcommands.
var globalOpts GlobalOpts

// GetGlobalOpts returns the parsed global options.
func GetGlobalOpts() GlobalOpts {
	return globalOpts
}

// NewRootCmd creates the root cobra command for extpipe.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "extpipe",
		Short: "Build and test pipeline for a native-extension package",
		Long: `extpipe - build and test pipeline for a native-extension package

extpipe builds a source distribution, compiles it into a wheel with a fixed
compiler directive set, stores the wheel in the artifact cache, optionally
runs the test matrix against it, and reduces the outcome to a single exit
status. Each invocation leaves a run directory with logs and a run record.

Configuration is read from EXTPIPE_* environment variables and the shared
helpers file under EXTPIPE_ROOT.`,
		Version:       version.FullVersion(),
		SilenceErrors: true, // We handle error printing in main.go
		SilenceUsage:  true, // We handle usage printing manually
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&globalOpts.Verbose, "verbose", false, "debug logging and detailed error context")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Wrap(errors.EUsage, err.Error(), err)
	})

	// Disable Cobra's default completion command (we register our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newRunCmd(),
		newBuildCmd(),
		newDirectivesCmd(),
		newReportCmd(),
		newDoctorCmd(),
		newLSCmd(),
		newShowCmd(),
		newCleanCmd(),
		newCompletionCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
// This is the main entry point from main.go.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}

// processEnv is the only place the CLI reads the real process environment.
func processEnv() config.Env {
	return config.OSEnv{}
}

// newLogger returns the structured logger for a command, on stderr:
// console lines on a terminal, JSON otherwise.
func newLogger(cmd *cobra.Command) *zap.Logger {
	w := cmd.ErrOrStderr()
	if tty.IsTerminal(w) {
		return logging.NewConsole(w, globalOpts.Verbose)
	}
	return logging.New(w, globalOpts.Verbose)
}

// exactArgs is cobra.ExactArgs with an E_USAGE error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.New(errors.EUsage, fmt.Sprintf("%s accepts %d arg(s), received %d", cmd.CommandPath(), n, len(args)))
		}
		return nil
	}
}

// noArgs is cobra.NoArgs with an E_USAGE error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.New(errors.EUsage, fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath()))
	}
	return nil
}
