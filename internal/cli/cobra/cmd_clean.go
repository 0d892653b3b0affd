package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/extpipe/internal/commands"
)

func newCleanCmd() *cobra.Command {
	var keep int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove old run directories",
		Long: `Remove extpipe-run-* directories under EXTPIPE_WORKDIR.
Run directories are never removed by the pipeline itself.

Behavior:
  - removes every run except the newest --keep
  - skips unfinished runs that are still active; stalled runs are removed
  - never removes anything outside the work directory
  - the artifact cache is not touched`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := commands.CleanOpts{Keep: keep, DryRun: dryRun}
			return commands.Clean(processEnv(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "number of newest runs to keep")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be removed")

	return cmd
}
