package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/report"
	"github.com/NielsdaWheelz/extpipe/internal/testexec"
)

// ReportOpts holds options for the report command.
type ReportOpts struct {
	// Logs are explicit log files to scan.
	Logs []string

	// Run selects the test logs of a recorded run (id or unique prefix).
	Run string

	// Pattern and Marker override the default matcher when non-empty.
	Pattern string
	Marker  string
}

// Report prints the failure lines of each log. Unreadable logs are reported
// inline; the command then fails with E_NOT_FOUND after every log was tried.
func Report(env config.Env, opts ReportOpts, stdout, stderr io.Writer) error {
	if len(opts.Logs) == 0 && opts.Run == "" {
		return errors.NewWithDetails(errors.EUsage, "no logs given",
			map[string]string{"hint": "pass log files or --run <id>"})
	}

	m, err := report.NewMatcher(opts.Pattern, opts.Marker)
	if err != nil {
		return errors.Wrap(errors.EUsage, "invalid --pattern", err)
	}

	var sources []report.LogSource
	if opts.Run != "" {
		run, err := resolveRun(config.WorkDir(env), opts.Run)
		if err != nil {
			return err
		}
		found, err := report.GlobSources(filepath.Join(run.RunDir, "logs", testexec.LogPattern))
		if err != nil {
			return errors.Wrap(errors.EInternal, "failed to list run logs", err)
		}
		if len(found) == 0 {
			return errors.NewWithDetails(errors.ENotFound, "run has no test logs",
				map[string]string{"run_dir": run.RunDir, "hint": "tests run only with --check warn or enforce"})
		}
		sources = append(sources, found...)
	}
	for _, p := range opts.Logs {
		sources = append(sources, report.FileSource(p))
	}

	sum := report.Print(stdout, sources, m)
	_, _ = fmt.Fprintf(stderr, "%d failure lines in %d logs\n", sum.Failures, sum.Sources)
	if sum.Errors > 0 {
		return errors.New(errors.ENotFound, fmt.Sprintf("%d of %d logs could not be read", sum.Errors, sum.Sources))
	}
	return nil
}
