package config

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/NielsdaWheelz/extpipe/internal/errors"
)

// knownPlaceholders lists the placeholders each command may use.
var knownPlaceholders = map[string][]string{
	"sdist": {"outdir", "source"},
	"wheel": {"outdir", "sdist", "directives"},
	"test":  {"env", "wheel", "cache"},
}

// Validate checks a loaded Config. Returns E_INVALID_CONFIG naming the first
// offending field.
func Validate(cfg *Config) error {
	if cfg.Package.Name == "" {
		return invalid("package.name", "is required")
	}
	if containsWhitespace(cfg.Package.Name) {
		return invalid("package.name", "must not contain whitespace")
	}
	if containsWhitespace(cfg.Package.Version) {
		return invalid("package.version", "must not contain whitespace")
	}

	for _, c := range []struct {
		name string
		cmd  Command
	}{
		{"sdist", cfg.Commands.Sdist},
		{"wheel", cfg.Commands.Wheel},
		{"test", cfg.Commands.Test},
	} {
		name, cmd := c.name, c.cmd
		if cmd.Program() == "" {
			return invalid("commands."+name, "must name a program")
		}
		vars := make(map[string]string)
		for _, p := range knownPlaceholders[name] {
			vars[p] = ""
		}
		if _, err := cmd.Expand(vars); err != nil {
			return invalid("commands."+name, err.Error())
		}
	}

	if cfg.CheckMode.RunsTests() && len(cfg.Environments) == 0 {
		return invalid("environments", "at least one test environment is required when "+EnvCheck+"="+string(cfg.CheckMode))
	}
	for _, env := range cfg.Environments {
		if containsWhitespace(env) || strings.ContainsAny(env, `/\`) {
			return invalid("environments", "invalid environment name "+env)
		}
	}
	if cfg.Parallel < 0 {
		return invalid(EnvParallel, "must not be negative")
	}

	if cfg.Report.FailurePattern != "" {
		if _, err := regexp.Compile(cfg.Report.FailurePattern); err != nil {
			return invalid("report.failure_pattern", err.Error())
		}
	}
	return nil
}

func invalid(field, msg string) error {
	return errors.NewWithDetails(errors.EInvalidConfig, field+": "+msg, map[string]string{
		"field": field,
	})
}

// containsWhitespace returns true if s contains any whitespace character.
func containsWhitespace(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
