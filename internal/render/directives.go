package render

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/extpipe/internal/directives"
)

// Output formats for the directives command.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriteDirectives renders the directive set. text prints one key=value per
// line in fixed key order.
func WriteDirectives(w io.Writer, set directives.Set, format string) error {
	switch format {
	case "", FormatText:
		m := set.Map()
		for _, k := range directives.Keys() {
			if _, err := fmt.Fprintf(w, "%s=%s\n", k, m[k]); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(set.Map())
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(set.Map()); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
}
