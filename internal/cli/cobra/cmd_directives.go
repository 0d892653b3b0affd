package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/extpipe/internal/commands"
)

func newDirectivesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "directives",
		Short: "Print the compiler directive set",
		Long: `Print the compiler directive set passed to the wheel build.
The set is fixed; warnings never fail the build.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Directives(commands.DirectivesOpts{Format: format}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")

	return cmd
}
