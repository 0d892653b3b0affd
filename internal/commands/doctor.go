package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
	"github.com/NielsdaWheelz/extpipe/internal/fs"
)

// DoctorReport holds all the data for doctor output.
type DoctorReport struct {
	Root          string
	HelpersPath   string
	SourceDir     string
	ArtifactCache string
	WorkDir       string

	CacheExists    bool
	BaselinePath   string
	BaselineExists bool

	Package      string
	CheckMode    string
	Environments []string
	Parallel     int

	Tools []ToolCheck
}

// ToolCheck is the LookPath result for one configured command. Path is
// empty when the program is not on PATH.
type ToolCheck struct {
	Stage   string
	Program string
	Path    string
}

// Doctor validates the configuration and tool availability and prints a
// report. Every check is printed before the first failure is returned.
func Doctor(cr exec.CommandRunner, env config.Env, stdout io.Writer) error {
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	rep := DoctorReport{
		Root:           cfg.Root,
		HelpersPath:    cfg.HelpersPath,
		SourceDir:      cfg.SourceDir,
		ArtifactCache:  cfg.ArtifactCache,
		WorkDir:        cfg.WorkDir,
		CacheExists:    fs.DirExists(cfg.ArtifactCache),
		BaselinePath:   cfg.BaselinePath,
		BaselineExists: cfg.Baseline().Exists(),
		Package:        cfg.Package.Name + " " + cfg.Package.Version,
		CheckMode:      string(cfg.CheckMode),
		Environments:   cfg.Environments,
		Parallel:       cfg.Parallel,
	}

	var firstErr error
	if !fs.DirExists(cfg.SourceDir) {
		firstErr = errors.NewWithDetails(errors.EInvalidConfig, "source tree not found: "+cfg.SourceDir,
			map[string]string{"hint": "set " + config.EnvSource + " or create <root>/src"})
	}

	stages := []struct {
		name string
		cmd  config.Command
	}{
		{"sdist", cfg.Commands.Sdist},
		{"wheel", cfg.Commands.Wheel},
		{"test", cfg.Commands.Test},
	}
	for _, s := range stages {
		tc := ToolCheck{Stage: s.name, Program: s.cmd.Program()}
		if p, err := cr.LookPath(tc.Program); err == nil {
			tc.Path = p
		} else if firstErr == nil {
			firstErr = errors.NewWithDetails(errors.EToolNotInstalled, tc.Program+" not found on PATH", map[string]string{
				"stage":   s.name,
				"command": s.cmd.String(),
				"hint":    "install " + tc.Program + " or change commands." + s.name + " in " + cfg.HelpersPath,
			})
		}
		rep.Tools = append(rep.Tools, tc)
	}

	writeDoctorReport(stdout, rep)
	if firstErr != nil {
		return firstErr
	}
	_, _ = fmt.Fprintln(stdout, "status: ok")
	return nil
}

func writeDoctorReport(w io.Writer, r DoctorReport) {
	_, _ = fmt.Fprintf(w, "root: %s\n", r.Root)
	_, _ = fmt.Fprintf(w, "helpers: %s\n", r.HelpersPath)
	_, _ = fmt.Fprintf(w, "source_dir: %s\n", r.SourceDir)
	_, _ = fmt.Fprintf(w, "artifact_cache: %s (%s)\n", r.ArtifactCache, presence(r.CacheExists))
	_, _ = fmt.Fprintf(w, "baseline: %s (%s)\n", r.BaselinePath, presence(r.BaselineExists))
	_, _ = fmt.Fprintf(w, "workdir: %s\n", r.WorkDir)
	_, _ = fmt.Fprintf(w, "package: %s\n", r.Package)
	_, _ = fmt.Fprintf(w, "check: %s\n", r.CheckMode)
	_, _ = fmt.Fprintf(w, "environments: %s\n", strings.Join(r.Environments, ","))
	_, _ = fmt.Fprintf(w, "parallel: %d\n", r.Parallel)
	for _, t := range r.Tools {
		path := t.Path
		if path == "" {
			path = "MISSING"
		}
		_, _ = fmt.Fprintf(w, "tool.%s: %s (%s)\n", t.Stage, t.Program, path)
	}
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "absent"
}
