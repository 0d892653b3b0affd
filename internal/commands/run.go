package commands

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
	"github.com/NielsdaWheelz/extpipe/internal/pipeline"
	"github.com/NielsdaWheelz/extpipe/internal/render"
	"github.com/NielsdaWheelz/extpipe/internal/report"
)

// RunOpts holds options for the run command.
type RunOpts struct {
	// Check overrides EXTPIPE_CHECK when non-empty.
	Check string
}

// Run executes the full pipeline and prints the run summary followed by
// the failure report over the test logs. The report is printed whether or
// not the decision passed. A failing decision is returned as E_TESTS_FAILED.
func Run(ctx context.Context, cr exec.CommandRunner, env config.Env, logger *zap.Logger, opts RunOpts, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(env, opts.Check)
	if err != nil {
		return err
	}

	res, err := pipeline.New(cfg, cr, logger).Run(ctx)
	if err != nil {
		printRunLocation(stderr, res)
		return err
	}

	if err := render.WriteShowHuman(stdout, res.Record); err != nil {
		return errors.Wrap(errors.EInternal, "failed to write output", err)
	}
	if res.Tests != nil {
		if err := printFailures(stdout, cfg, res.Tests.LogPaths()); err != nil {
			return err
		}
	}
	return res.Err()
}

// Build runs the directive and build stages and prints the stored artifact.
func Build(ctx context.Context, cr exec.CommandRunner, env config.Env, logger *zap.Logger, stdout, stderr io.Writer) error {
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	res, err := pipeline.New(cfg, cr, logger).Build(ctx)
	if err != nil {
		printRunLocation(stderr, res)
		return err
	}
	if err := render.WriteShowHuman(stdout, res.Record); err != nil {
		return errors.Wrap(errors.EInternal, "failed to write output", err)
	}
	return nil
}

func printRunLocation(w io.Writer, res *pipeline.Result) {
	if res == nil || res.Record == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "run: %s\nrun_dir: %s\n", res.Record.RunID, res.RunDir)
}

func printFailures(w io.Writer, cfg *config.Config, logs []string) error {
	m, err := report.NewMatcher(cfg.Report.FailurePattern, cfg.Report.SuppressedMarker)
	if err != nil {
		return errors.WrapWithDetails(errors.EInvalidConfig, "invalid failure pattern", err,
			map[string]string{"field": "report.failure_pattern"})
	}
	sources := make([]report.LogSource, 0, len(logs))
	for _, p := range logs {
		sources = append(sources, report.FileSource(p))
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "failures:")
	report.Print(w, sources, m)
	return nil
}
