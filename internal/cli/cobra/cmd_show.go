package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/extpipe/internal/commands"
)

func newShowCmd() *cobra.Command {
	var jsonOutput bool
	var pathOutput bool

	cmd := &cobra.Command{
		Use:   "show <run>",
		Short: "Show details of a run",
		Long: `Show details for a single recorded run.

Arguments:
  run    run_id or unique run_id prefix`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := commands.ShowOpts{
				RunID: args[0],
				JSON:  jsonOutput,
				Path:  pathOutput,
			}
			return commands.Show(processEnv(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the run record as JSON")
	cmd.Flags().BoolVar(&pathOutput, "path", false, "output only resolved filesystem paths")

	return cmd
}
