package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/fs"
	"github.com/NielsdaWheelz/extpipe/internal/store"
	"github.com/NielsdaWheelz/extpipe/internal/watchdog"
)

// CleanOpts holds options for the clean command.
type CleanOpts struct {
	// Keep retains the newest Keep runs.
	Keep int

	// DryRun prints what would be removed without removing anything.
	DryRun bool

	// Now decides whether an unfinished run is stalled; zero means time.Now.
	Now time.Time
}

// Clean removes run directories under the work directory. Removal is
// confined to the work directory by fs.SafeRemoveAll. Unfinished runs are
// left alone unless they have stalled.
func Clean(env config.Env, opts CleanOpts, stdout io.Writer) error {
	if opts.Keep < 0 {
		return errors.New(errors.EUsage, "--keep must not be negative")
	}
	workDir := config.WorkDir(env)

	runs, err := store.ScanRuns(workDir)
	if err != nil {
		return errors.WrapWithDetails(errors.EInternal, "failed to scan runs", err,
			map[string]string{"workdir": workDir})
	}
	// runs are oldest first
	if opts.Keep >= len(runs) {
		_, _ = fmt.Fprintln(stdout, "nothing to clean")
		return nil
	}
	victims := runs[:len(runs)-opts.Keep]

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	for _, r := range victims {
		if inProgress(r, now) {
			_, _ = fmt.Fprintf(stdout, "skipped %s (in progress)\n", r.RunDir)
			continue
		}
		if opts.DryRun {
			_, _ = fmt.Fprintf(stdout, "would remove %s\n", r.RunDir)
			continue
		}
		if err := fs.SafeRemoveAll(r.RunDir, workDir); err != nil {
			return errors.WrapWithDetails(errors.EPersistFailed, "failed to remove run directory", err,
				map[string]string{"run_dir": r.RunDir})
		}
		_, _ = fmt.Fprintf(stdout, "removed %s\n", r.RunDir)
	}
	return nil
}

// inProgress reports whether r is an unfinished run that is still active.
// Broken runs have no record to tell and count as finished.
func inProgress(r store.RunEntry, now time.Time) bool {
	if r.Broken || r.Record == nil || r.Record.FinishedAt != "" {
		return false
	}
	return !watchdog.CheckStallWithDefault(watchdog.ActivitySignals{LastActivity: r.LastActivity}, now).IsStalled
}
