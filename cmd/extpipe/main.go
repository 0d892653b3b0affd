// Command extpipe builds, stores and tests a native-extension package.
package main

import (
	"os"

	"github.com/NielsdaWheelz/extpipe/internal/cli/cobra"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
)

func main() {
	err := cobra.Execute(os.Stdout, os.Stderr)
	if err != nil {
		// Use verbose mode if --verbose global flag was set
		opts := errors.PrintOptions{
			Verbose: cobra.GetGlobalOpts().Verbose,
		}
		errors.PrintWithOptions(os.Stderr, err, opts)
		os.Exit(errors.ExitCode(err))
	}
}
