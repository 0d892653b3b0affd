package commands

import (
	"encoding/json"
	"io"
	"slices"
	"time"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/render"
	"github.com/NielsdaWheelz/extpipe/internal/store"
)

// LSOpts holds options for the ls command.
type LSOpts struct {
	// JSON outputs machine-readable JSON.
	JSON bool

	// Now is used for relative times; zero means time.Now.
	Now time.Time
}

// LS lists recorded runs, newest first.
func LS(env config.Env, opts LSOpts, stdout io.Writer) error {
	workDir := config.WorkDir(env)
	runs, err := store.ScanRuns(workDir)
	if err != nil {
		return errors.WrapWithDetails(errors.EInternal, "failed to scan runs", err,
			map[string]string{"workdir": workDir})
	}
	slices.Reverse(runs)

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	summaries := make([]render.RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, render.Summarize(r, now))
	}

	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			return errors.Wrap(errors.EInternal, "failed to write JSON", err)
		}
		return nil
	}

	rows := make([]render.RunSummaryHumanRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, render.FormatHumanRow(s, now))
	}
	if err := render.WriteLSHuman(stdout, rows); err != nil {
		return errors.Wrap(errors.EInternal, "failed to write output", err)
	}
	return nil
}
