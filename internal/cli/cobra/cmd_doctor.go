package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/extpipe/internal/commands"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and tool availability",
		Long: `Load the configuration and check the helpers file, the source tree and
that every configured command's program is on PATH. Prints the resolved
configuration; exits nonzero on the first failed check.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Doctor(exec.NewRealRunner(), processEnv(), cmd.OutOrStdout())
		},
	}

	return cmd
}
