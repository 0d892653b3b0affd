package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/extpipe/internal/commands"
)

func newReportCmd() *cobra.Command {
	var run string
	var pattern string
	var marker string

	cmd := &cobra.Command{
		Use:   "report [<log>...]",
		Short: "Print failure lines from test logs",
		Long: `Print the failure lines of test logs, one "== <log>" section per file.
Lines carrying the baseline suppression marker are never printed.

Arguments:
  log    log files to scan

With --run, the test logs of a recorded run are scanned as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := commands.ReportOpts{
				Logs:    args,
				Run:     run,
				Pattern: pattern,
				Marker:  marker,
			}
			return commands.Report(processEnv(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "scan the test logs of this run (id or unique prefix)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "failure line regexp (default: doctest failure lines)")
	cmd.Flags().StringVar(&marker, "marker", "", "suppression marker (default: [failed in baseline])")

	return cmd
}
