// Package commands implements extpipe CLI commands.
package commands

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/ids"
	"github.com/NielsdaWheelz/extpipe/internal/store"
)

// overlayEnv answers selected keys from vals and everything else from Env.
// Flags that mirror environment keys are applied through it so config.Load
// stays the single place that interprets them.
type overlayEnv struct {
	config.Env
	vals map[string]string
}

func (o overlayEnv) Getenv(key string) string {
	if v, ok := o.vals[key]; ok {
		return v
	}
	return o.Env.Getenv(key)
}

// loadConfig loads the configuration, with a non-empty check flag taking
// precedence over EXTPIPE_CHECK.
func loadConfig(env config.Env, check string) (*config.Config, error) {
	if check != "" {
		env = overlayEnv{Env: env, vals: map[string]string{config.EnvCheck: check}}
	}
	return config.Load(env)
}

// resolveRun finds a run under workDir by exact id or unique id prefix.
func resolveRun(workDir, input string) (store.RunEntry, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return store.RunEntry{}, errors.New(errors.EUsage, "run id is required")
	}

	runs, err := store.ScanRuns(workDir)
	if err != nil {
		return store.RunEntry{}, errors.WrapWithDetails(errors.EInternal, "failed to scan runs", err,
			map[string]string{"workdir": workDir})
	}
	refs := make([]ids.RunRef, len(runs))
	for i, r := range runs {
		refs[i] = ids.RunRef{RunID: r.RunID, Broken: r.Broken}
	}

	ref, err := ids.ResolveRunRef(input, refs)
	if err != nil {
		return store.RunEntry{}, handleResolveErr(err, input, workDir)
	}
	for _, r := range runs {
		if r.RunID == ref.RunID {
			return r, nil
		}
	}
	return store.RunEntry{}, errors.New(errors.EInternal, "resolved run not found in scan")
}

// handleResolveErr converts resolution errors to user-facing errors.
func handleResolveErr(err error, input, workDir string) error {
	var notFound *ids.ErrNotFound
	if stderrors.As(err, &notFound) {
		return errors.NewWithDetails(errors.ENotFound, fmt.Sprintf("run not found: %s", input), map[string]string{
			"workdir": workDir,
			"hint":    "list runs with: extpipe ls",
		})
	}

	var ambiguous *ids.ErrAmbiguous
	if stderrors.As(err, &ambiguous) {
		var lines []string
		for _, c := range ambiguous.Candidates {
			lines = append(lines, "  "+c.RunID)
		}
		msg := fmt.Sprintf("ambiguous run id %q matches multiple runs:\n%s", input, strings.Join(lines, "\n"))
		return errors.NewWithDetails(errors.ERunIDAmbiguous, msg, map[string]string{
			"input": input,
			"hint":  "use a longer prefix or the full run id",
		})
	}
	return err
}
