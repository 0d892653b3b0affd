package commands

import (
	"encoding/json"
	"io"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/render"
)

// ShowOpts holds options for the show command.
type ShowOpts struct {
	// RunID is the run identifier (exact or unique prefix).
	RunID string

	// JSON outputs the run record as JSON.
	JSON bool

	// Path outputs only resolved filesystem paths.
	Path bool
}

// Show prints one recorded run. --path works for broken runs; the other
// modes need a readable run record.
func Show(env config.Env, opts ShowOpts, stdout io.Writer) error {
	run, err := resolveRun(config.WorkDir(env), opts.RunID)
	if err != nil {
		return err
	}

	if opts.Path {
		if err := render.WriteShowPaths(stdout, render.PathsFor(run.RunDir, run.Record)); err != nil {
			return errors.Wrap(errors.EInternal, "failed to write output", err)
		}
		return nil
	}

	if run.Broken {
		return errors.NewWithDetails(errors.ENotFound, "run record is missing or unreadable: "+run.RunID,
			map[string]string{"run_dir": run.RunDir, "hint": "inspect the directory with: extpipe show --path " + run.RunID})
	}

	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run.Record); err != nil {
			return errors.Wrap(errors.EInternal, "failed to write JSON", err)
		}
		return nil
	}
	if err := render.WriteShowHuman(stdout, run.Record); err != nil {
		return errors.Wrap(errors.EInternal, "failed to write output", err)
	}
	return nil
}
