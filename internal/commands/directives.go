package commands

import (
	"io"

	"github.com/NielsdaWheelz/extpipe/internal/directives"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/render"
)

// DirectivesOpts holds options for the directives command.
type DirectivesOpts struct {
	// Format is text, json or yaml. Empty means text.
	Format string
}

// Directives prints the compiler directive set.
func Directives(opts DirectivesOpts, stdout io.Writer) error {
	switch opts.Format {
	case "", render.FormatText, render.FormatJSON, render.FormatYAML:
	default:
		return errors.NewWithDetails(errors.EUsage, "unknown format: "+opts.Format,
			map[string]string{"hint": "use --format text, json or yaml"})
	}
	if err := render.WriteDirectives(stdout, directives.Default(), opts.Format); err != nil {
		return errors.Wrap(errors.EInternal, "failed to write directives", err)
	}
	return nil
}
