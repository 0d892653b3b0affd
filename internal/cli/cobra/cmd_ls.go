package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/extpipe/internal/commands"
)

func newLSCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List recorded runs",
		Long: `List the run directories under EXTPIPE_WORKDIR, newest first.
Runs whose record is missing or unreadable are listed as broken.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.LS(processEnv(), commands.LSOpts{JSON: jsonOutput}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON (stable format)")

	return cmd
}
