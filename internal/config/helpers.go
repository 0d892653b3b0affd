package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/extpipe/internal/errors"
)

// DefaultHelpersPath is the helpers file location relative to the package root.
const DefaultHelpersPath = "build/extpipe-helpers.yaml"

// Helpers is the shared helpers file: package identity, the external
// commands each stage runs, and the test matrix.
type Helpers struct {
	Package      PackageIdentity `yaml:"package"`
	Commands     Commands        `yaml:"commands"`
	Environments []string        `yaml:"environments"`
	Report       ReportSettings  `yaml:"report"`
}

// PackageIdentity names the package being built.
type PackageIdentity struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
}

// Commands holds argv templates for the external tools.
type Commands struct {
	Sdist Command `yaml:"sdist"`
	Wheel Command `yaml:"wheel"`
	Test  Command `yaml:"test"`
}

// ReportSettings overrides the failure reporter's defaults.
type ReportSettings struct {
	FailurePattern   string `yaml:"failure_pattern"`
	SuppressedMarker string `yaml:"suppressed_marker"`
}

// DefaultCommands are used for any command the helpers file leaves empty.
var DefaultCommands = Commands{
	Sdist: Command{"python3", "-m", "build", "--sdist", "--no-isolation", "--outdir", "{outdir}", "{source}"},
	Wheel: Command{"python3", "-m", "pip", "wheel", "--no-deps", "--no-build-isolation",
		"--config-settings=--build-option=--cython-directives={directives}", "--wheel-dir", "{outdir}", "{sdist}"},
	Test:  Command{"tox", "-e", "{env}", "--installpkg", "{wheel}"},
}

// LoadHelpers reads and strictly decodes the helpers file.
// A missing or unreadable file is E_HELPERS_MISSING; the hint names the
// package-root setting since that is nearly always the cause.
func LoadHelpers(path string) (Helpers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		msg := "shared helpers file is unreadable"
		if stderrors.Is(err, os.ErrNotExist) {
			msg = "shared helpers file not found"
		}
		return Helpers{}, errors.WrapWithDetails(errors.EHelpersMissing, msg, err, map[string]string{
			"helpers": path,
			"hint":    "is " + EnvRoot + " set to the package root?",
		})
	}
	return ParseHelpers(data)
}

// ParseHelpers decodes helpers YAML, rejecting unknown fields.
func ParseHelpers(data []byte) (Helpers, error) {
	var h Helpers
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && !stderrors.Is(err, io.EOF) {
		return Helpers{}, errors.Wrap(errors.EInvalidConfig, "invalid helpers file: "+err.Error(), err)
	}

	h.Package.Name = strings.TrimSpace(h.Package.Name)
	h.Package.Version = strings.TrimSpace(h.Package.Version)
	if len(h.Commands.Sdist) == 0 {
		h.Commands.Sdist = DefaultCommands.Sdist
	}
	if len(h.Commands.Wheel) == 0 {
		h.Commands.Wheel = DefaultCommands.Wheel
	}
	if len(h.Commands.Test) == 0 {
		h.Commands.Test = DefaultCommands.Test
	}
	return h, nil
}

// Command is an argv template. Elements may contain {name} placeholders.
type Command []string

// Expand substitutes placeholders from vars. A placeholder without a value
// is an error so a typo never reaches the external tool.
func (c Command) Expand(vars map[string]string) ([]string, error) {
	out := make([]string, len(c))
	for i, arg := range c {
		var sb strings.Builder
		rest := arg
		for {
			open := strings.IndexByte(rest, '{')
			if open < 0 {
				sb.WriteString(rest)
				break
			}
			end := strings.IndexByte(rest[open:], '}')
			if end < 0 {
				sb.WriteString(rest)
				break
			}
			name := rest[open+1 : open+end]
			val, ok := vars[name]
			if !ok {
				return nil, fmt.Errorf("unknown placeholder {%s} in %q", name, arg)
			}
			sb.WriteString(rest[:open])
			sb.WriteString(val)
			rest = rest[open+end+1:]
		}
		out[i] = sb.String()
	}
	return out, nil
}

// Program returns the executable name (first element), or "".
func (c Command) Program() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// String joins the template for display.
func (c Command) String() string {
	return strings.Join(c, " ")
}
