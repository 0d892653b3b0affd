// Package testexec runs a built wheel through the configured matrix of
// isolated test environments, one process per environment.
package testexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NielsdaWheelz/extpipe/internal/artifact"
	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
	"github.com/NielsdaWheelz/extpipe/internal/logging"
	"github.com/NielsdaWheelz/extpipe/internal/runlog"
	"github.com/NielsdaWheelz/extpipe/internal/status"
)

// Variables exported to every test environment.
const (
	EnvPipNoIndex           = "PIP_NO_INDEX"
	EnvPipFindLinks         = "PIP_FIND_LINKS"
	EnvToxParallelNoSpinner = "TOX_PARALLEL_NO_SPINNER"
)

// LogPattern matches every per-environment log in a log directory.
const LogPattern = "test-*.log"

// LogPath returns the log file for env under logDir.
func LogPath(logDir, env string) string {
	return filepath.Join(logDir, "test-"+env+".log")
}

// EnvResult is the outcome of one test environment.
type EnvResult struct {
	Env        string `json:"env"`
	ExitCode   int    `json:"exit_code"`
	Log        string `json:"log"`
	DurationMS int64  `json:"duration_ms"`
	// Error is set when the process could not be started.
	Error string `json:"error,omitempty"`
}

// Result is the aggregate over all environments, in configured order.
type Result struct {
	ExitCode int         `json:"exit_code"`
	Envs     []EnvResult `json:"envs"`
}

// Outcome classifies the aggregate exit code.
func (r Result) Outcome() status.Outcome {
	return status.OutcomeFromExitCode(r.ExitCode)
}

// LogPaths returns the per-environment logs in configured order.
func (r Result) LogPaths() []string {
	out := make([]string, 0, len(r.Envs))
	for _, e := range r.Envs {
		out = append(out, e.Log)
	}
	return out
}

// Failed returns the names of environments that exited nonzero.
func (r Result) Failed() []string {
	var out []string
	for _, e := range r.Envs {
		if e.ExitCode != 0 {
			out = append(out, e.Env)
		}
	}
	return out
}

// Aggregate computes the aggregate exit code: 0 when every environment
// passed, otherwise the first nonzero code in slice order.
func Aggregate(envs []EnvResult) int {
	for _, e := range envs {
		if e.ExitCode != 0 {
			return e.ExitCode
		}
	}
	return 0
}

// Executor runs the test command once per environment.
type Executor struct {
	cfg    *config.Config
	runner exec.CommandRunner
	logger *zap.Logger
}

// NewExecutor returns an Executor. A nil logger discards logs.
func NewExecutor(cfg *config.Config, runner exec.CommandRunner, logger *zap.Logger) *Executor {
	return &Executor{cfg: cfg, runner: runner, logger: logging.OrNop(logger)}
}

// Env returns the installation and output variables for a test process.
func (e *Executor) Env() []string {
	env := append([]string(nil), e.cfg.BaseEnv...)
	if e.cfg.NoIndex {
		env = append(env, EnvPipNoIndex+"=1")
	}
	env = append(env, EnvPipFindLinks+"="+e.cfg.ArtifactCache)
	if e.cfg.ParallelNoSpinner {
		env = append(env, EnvToxParallelNoSpinner+"=1")
	}
	return env
}

// Run tests art in every configured environment concurrently, writing
// logDir/test-<env>.log for each. Test failures are reported in the
// Result; the error is reserved for E_TEST_EXEC_FAILED, when logs cannot be
// created.
func (e *Executor) Run(ctx context.Context, art artifact.Artifact, logDir string) (Result, error) {
	log := logging.Stage(e.logger, "test")
	envs := e.cfg.Environments
	if len(envs) == 0 {
		return Result{}, errors.New(errors.ETestExecFailed, "no test environments configured")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return Result{}, errors.WrapWithDetails(errors.ETestExecFailed, "failed to create test log directory", err,
			map[string]string{"log": logDir})
	}

	limit := e.cfg.Parallel
	if limit <= 0 {
		limit = len(envs)
	}
	procEnv := e.Env()

	results := make([]EnvResult, len(envs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, name := range envs {
		g.Go(func() error {
			res, err := e.runEnv(ctx, art, name, LogPath(logDir, name), procEnv)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Envs: results}, err
	}

	res := Result{ExitCode: Aggregate(results), Envs: results}
	log.Info("test matrix finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Int("envs", len(envs)),
		zap.Strings("failed", res.Failed()))
	return res, nil
}

func (e *Executor) runEnv(ctx context.Context, art artifact.Artifact, env, logPath string, procEnv []string) (EnvResult, error) {
	log := logging.Stage(e.logger, "test").With(zap.String("env", env))
	res := EnvResult{Env: env, Log: logPath}

	argv, err := e.cfg.Commands.Test.Expand(map[string]string{
		"env":   env,
		"wheel": art.Wheel,
		"cache": e.cfg.ArtifactCache,
	})
	if err != nil {
		return res, errors.Wrap(errors.ETestExecFailed, "invalid test command", err)
	}

	logFile, err := runlog.Create(logPath, runlog.Header{
		Title:   "test " + env,
		Command: argv,
		Dir:     e.cfg.Root,
		Env:     procEnv[len(e.cfg.BaseEnv):],
	})
	if err != nil {
		return res, errors.WrapWithDetails(errors.ETestExecFailed, "failed to create test log", err,
			map[string]string{"env": env, "log": logPath})
	}
	defer func() { _ = logFile.Close() }()

	log.Debug("environment started", zap.Strings("command", argv))
	start := time.Now()
	out, err := e.runner.Run(ctx, argv[0], argv[1:], exec.RunOpts{
		Dir:    e.cfg.Root,
		Env:    procEnv,
		Stdout: logFile,
		Stderr: logFile,
	})
	elapsed := time.Since(start)
	res.DurationMS = elapsed.Milliseconds()
	if err != nil {
		res.ExitCode = exec.ExitCodeNotStarted
		res.Error = err.Error()
		_, _ = fmt.Fprintf(logFile, "\n# failed to start: %v\n", err)
		log.Error("environment could not start", zap.Error(err))
		return res, nil
	}

	res.ExitCode = out.ExitCode
	runlog.Footer(logFile, out.ExitCode, elapsed)
	log.Info("environment finished", zap.Int("exit_code", out.ExitCode), zap.Duration("duration", elapsed))
	return res, nil
}
