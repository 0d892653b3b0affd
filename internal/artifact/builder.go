// Package artifact builds the package distributions and stores the wheel in
// the artifact cache. The wheel is always built from the sdist, never from
// the working tree.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/directives"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
	"github.com/NielsdaWheelz/extpipe/internal/fs"
	"github.com/NielsdaWheelz/extpipe/internal/logging"
	"github.com/NielsdaWheelz/extpipe/internal/runlog"
)

// Stage names, as they appear in logs and error details.
const (
	StageSdist = "sdist"
	StageWheel = "wheel"
	StageStore = "store"
)

// compileErrorMarkers identify compiler failures in the wheel build output.
var compileErrorMarkers = []string{
	"Error compiling Cython file",
	"Cython.Compiler.Errors.CompileError",
}

// Artifact is the stored wheel produced by one pipeline run.
type Artifact struct {
	Package    string            `json:"package"`
	Version    string            `json:"version"`
	Wheel      string            `json:"wheel"`
	Sdist      string            `json:"sdist"`
	SHA256     string            `json:"sha256"`
	Size       int64             `json:"size"`
	Directives map[string]string `json:"directives"`
	BuiltAt    time.Time         `json:"built_at"`
}

// RecordPath returns the path of the artifact record stored next to the wheel.
func (a Artifact) RecordPath() string {
	return a.Wheel + ".json"
}

// BuildOpts holds per-run inputs of a build.
type BuildOpts struct {
	// RunDir is the scoped run directory. Distributions are assembled under
	// RunDir/dist and stage logs are written to RunDir/logs.
	RunDir string

	Directives directives.Set
}

// SdistDir returns where the sdist stage writes its output.
func (o BuildOpts) SdistDir() string { return filepath.Join(o.RunDir, "dist", StageSdist) }

// WheelDir returns where the wheel stage writes its output.
func (o BuildOpts) WheelDir() string { return filepath.Join(o.RunDir, "dist", StageWheel) }

// LogPath returns the log file of a build stage.
func (o BuildOpts) LogPath(stage string) string {
	return filepath.Join(o.RunDir, "logs", stage+".log")
}

// Builder runs the sdist, wheel and store stages in order.
type Builder struct {
	cfg    *config.Config
	runner exec.CommandRunner
	logger *zap.Logger
	now    func() time.Time
}

// NewBuilder returns a Builder. A nil logger discards logs.
func NewBuilder(cfg *config.Config, runner exec.CommandRunner, logger *zap.Logger) *Builder {
	return &Builder{
		cfg:    cfg,
		runner: runner,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Build produces and stores the wheel. The first failing stage aborts the
// build with E_SDIST_FAILED, E_BDIST_FAILED, E_COMPILE_FAILED or
// E_STORE_FAILED.
func (b *Builder) Build(ctx context.Context, opts BuildOpts) (Artifact, error) {
	sdist, err := b.buildSdist(ctx, opts)
	if err != nil {
		return Artifact{}, err
	}
	wheel, err := b.buildWheel(ctx, opts, sdist)
	if err != nil {
		return Artifact{}, err
	}
	return b.store(opts, sdist, wheel)
}

func (b *Builder) buildSdist(ctx context.Context, opts BuildOpts) (string, error) {
	outDir := opts.SdistDir()
	argv, err := b.cfg.Commands.Sdist.Expand(map[string]string{
		"outdir": outDir,
		"source": b.cfg.SourceDir,
	})
	if err != nil {
		return "", b.stageError(errors.ESdistFailed, StageSdist, opts, "invalid sdist command", err, nil)
	}

	res, err := b.runStage(ctx, StageSdist, opts, argv, b.cfg.SourceDir, nil, outDir)
	details := map[string]string{"command": strings.Join(argv, " ")}
	if err != nil {
		return "", b.stageError(errors.ESdistFailed, StageSdist, opts, "sdist build could not run", err, details)
	}
	if res.ExitCode != 0 {
		details["exit_code"] = strconv.Itoa(res.ExitCode)
		return "", b.stageError(errors.ESdistFailed, StageSdist, opts, "sdist build failed", nil, details)
	}

	path, err := single(outDir, "*.tar.gz")
	if err != nil {
		return "", b.stageError(errors.ESdistFailed, StageSdist, opts, err.Error(), nil, details)
	}
	return path, nil
}

func (b *Builder) buildWheel(ctx context.Context, opts BuildOpts, sdist string) (string, error) {
	outDir := opts.WheelDir()
	argv, err := b.cfg.Commands.Wheel.Expand(map[string]string{
		"outdir":     outDir,
		"sdist":      sdist,
		"directives": opts.Directives.String(),
	})
	if err != nil {
		return "", b.stageError(errors.EBdistFailed, StageWheel, opts, "invalid wheel command", err, nil)
	}

	extraEnv := []string{opts.Directives.Env()}
	// Run from the run directory; the source tree is reachable only through the sdist.
	res, err := b.runStage(ctx, StageWheel, opts, argv, opts.RunDir, extraEnv, outDir)
	details := map[string]string{
		"command": strings.Join(argv, " "),
		"sdist":   sdist,
	}
	if err != nil {
		return "", b.stageError(errors.EBdistFailed, StageWheel, opts, "wheel build could not run", err, details)
	}
	if res.ExitCode != 0 {
		details["exit_code"] = strconv.Itoa(res.ExitCode)
		if hasCompileError(res) {
			return "", b.stageError(errors.ECompileFailed, StageWheel, opts, "compiling the extension failed", nil, details)
		}
		return "", b.stageError(errors.EBdistFailed, StageWheel, opts, "wheel build failed", nil, details)
	}

	path, err := single(outDir, "*.whl")
	if err != nil {
		return "", b.stageError(errors.EBdistFailed, StageWheel, opts, err.Error(), nil, details)
	}
	return path, nil
}

func (b *Builder) store(opts BuildOpts, sdist, wheel string) (Artifact, error) {
	log := logging.Stage(b.logger, StageStore)
	name := filepath.Base(wheel)
	prefix := WheelPrefix(b.cfg.Package.Name, b.cfg.Package.Version)
	if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
		return Artifact{}, b.stageError(errors.EStoreFailed, StageStore, opts,
			fmt.Sprintf("wheel %s does not match package identity (want prefix %s)", name, prefix), nil,
			map[string]string{"artifact": wheel})
	}

	dest := filepath.Join(b.cfg.ArtifactCache, name)
	if err := os.MkdirAll(b.cfg.ArtifactCache, 0o755); err != nil {
		return Artifact{}, b.storeError(opts, "failed to create artifact cache", err, dest)
	}
	if err := fs.CopyFileAtomic(wheel, dest, 0o644); err != nil {
		return Artifact{}, b.storeError(opts, "failed to store wheel", err, dest)
	}

	sum, size, err := digest(dest)
	if err != nil {
		return Artifact{}, b.storeError(opts, "failed to hash stored wheel", err, dest)
	}

	art := Artifact{
		Package:    b.cfg.Package.Name,
		Version:    b.cfg.Package.Version,
		Wheel:      dest,
		Sdist:      sdist,
		SHA256:     sum,
		Size:       size,
		Directives: opts.Directives.Map(),
		BuiltAt:    b.now().UTC(),
	}
	if err := fs.WriteJSONAtomic(art.RecordPath(), art, 0o644); err != nil {
		return Artifact{}, b.storeError(opts, "failed to write artifact record", err, dest)
	}

	log.Info("stored wheel",
		zap.String("artifact", dest),
		zap.String("sha256", sum),
		zap.Int64("size", size))
	return art, nil
}

// runStage runs one build command with its output captured in the stage log.
func (b *Builder) runStage(ctx context.Context, stage string, opts BuildOpts, argv []string, dir string, extraEnv []string, outDir string) (exec.CmdResult, error) {
	log := logging.Stage(b.logger, stage)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return exec.CmdResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	logFile, err := runlog.Create(opts.LogPath(stage), runlog.Header{
		Title:   stage,
		Command: argv,
		Dir:     dir,
		Env:     extraEnv,
		Time:    b.now(),
	})
	if err != nil {
		return exec.CmdResult{}, err
	}
	defer func() { _ = logFile.Close() }()

	log.Info("stage started", zap.Strings("command", argv))
	start := time.Now()
	res, err := b.runner.Run(ctx, argv[0], argv[1:], exec.RunOpts{
		Dir:     dir,
		Env:     append(append([]string(nil), b.cfg.BaseEnv...), extraEnv...),
		Stdout:  logFile,
		Stderr:  logFile,
		// the wheel output is searched for compiler errors
		Capture: stage == StageWheel,
	})
	elapsed := time.Since(start)
	if err != nil {
		_, _ = fmt.Fprintf(logFile, "\n# failed to start: %v\n", err)
		log.Error("stage could not start", zap.Error(err))
		return res, err
	}
	runlog.Footer(logFile, res.ExitCode, elapsed)
	log.Info("stage finished", zap.Int("exit_code", res.ExitCode), zap.Duration("duration", elapsed))
	return res, nil
}

func (b *Builder) stageError(code errors.Code, stage string, opts BuildOpts, msg string, cause error, extra map[string]string) error {
	details := map[string]string{
		"stage":   stage,
		"package": b.cfg.Package.Name,
		"version": b.cfg.Package.Version,
	}
	if stage != StageStore {
		details["log"] = opts.LogPath(stage)
	}
	for k, v := range extra {
		details[k] = v
	}
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return errors.WrapWithDetails(code, msg, cause, details)
}

func (b *Builder) storeError(opts BuildOpts, msg string, cause error, dest string) error {
	return b.stageError(errors.EStoreFailed, StageStore, opts, msg, cause, map[string]string{
		"artifact": dest,
		"cache":    b.cfg.ArtifactCache,
	})
}

// single returns the one file in dir matching pattern.
func single(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no %s produced in %s", pattern, dir)
	default:
		return "", fmt.Errorf("expected one %s in %s, found %d", pattern, dir, len(matches))
	}
}

func hasCompileError(res exec.CmdResult) bool {
	for _, m := range compileErrorMarkers {
		if strings.Contains(res.Stdout, m) || strings.Contains(res.Stderr, m) {
			return true
		}
	}
	return false
}

var nonAlnumRun = regexp.MustCompile(`[^A-Za-z0-9.]+`)
var sepRun = regexp.MustCompile(`[-_.]+`)

// NormalizeName returns the distribution name as it appears in wheel
// filenames: runs of "-", "_" and "." collapse to "_", lowercased.
func NormalizeName(name string) string {
	return strings.ToLower(sepRun.ReplaceAllString(name, "_"))
}

// WheelPrefix returns the filename prefix every wheel of the given package
// and version must carry: "<normalized-name>-<version>-".
func WheelPrefix(name, version string) string {
	return NormalizeName(name) + "-" + nonAlnumRun.ReplaceAllString(version, "_") + "-"
}

func digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
