// Package pipeline orchestrates one invocation: directives, build, optional
// test matrix, and status reduction, leaving a run directory with the
// stage logs, events and run record behind.
package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NielsdaWheelz/extpipe/internal/artifact"
	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/directives"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/events"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
	"github.com/NielsdaWheelz/extpipe/internal/ids"
	"github.com/NielsdaWheelz/extpipe/internal/logging"
	"github.com/NielsdaWheelz/extpipe/internal/status"
	"github.com/NielsdaWheelz/extpipe/internal/store"
	"github.com/NielsdaWheelz/extpipe/internal/testexec"
)

// Command names recorded in the run record.
const (
	CommandRun   = "run"
	CommandBuild = "build"
)

// Service runs the pipeline for one configuration.
type Service struct {
	cfg    *config.Config
	runner exec.CommandRunner
	logger *zap.Logger
	store  *store.Store

	now      func() time.Time
	newRunID func(time.Time) string
}

// New returns a Service. A nil logger discards logs.
func New(cfg *config.Config, runner exec.CommandRunner, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		runner:   runner,
		logger:   logging.OrNop(logger),
		store:    store.NewStore(cfg.WorkDir, time.Now),
		now:      time.Now,
		newRunID: ids.NewRunID,
	}
}

// Result describes a completed invocation.
type Result struct {
	Record *store.RunRecord
	RunDir string
	LogDir string

	Artifact artifact.Artifact

	// Tests is nil when the check mode skips the test matrix.
	Tests *testexec.Result

	// Decision is the zero value for build-only invocations.
	Decision status.Decision
}

// Err converts a failing decision into E_TESTS_FAILED. Nil when the run
// succeeded.
func (r *Result) Err() error {
	if r == nil || r.Decision.OK || r.Record == nil || r.Record.Command != CommandRun {
		return nil
	}
	details := map[string]string{
		"log_dir": r.LogDir,
		"record":  filepath.Join(r.RunDir, store.RecordFile),
	}
	if r.Tests != nil {
		details["exit_code"] = strconv.Itoa(r.Tests.ExitCode)
		if failed := r.Tests.Failed(); len(failed) > 0 {
			details["env"] = strings.Join(failed, ",")
		}
	}
	return errors.WithExitCode(errors.NewWithDetails(errors.ETestsFailed, r.Decision.Message, details), 1)
}

// run carries the per-invocation state between stages.
type run struct {
	id      string
	dir     string
	logDir  string
	started time.Time
	record  *store.RunRecord
	events  *events.Recorder
	log     *zap.Logger
}

// Run executes the full pipeline. Fatal-tier failures are returned as
// errors; a failing decision is reported in the Result (see Result.Err).
func (s *Service) Run(ctx context.Context) (*Result, error) {
	r, err := s.begin(CommandRun)
	if err != nil {
		return nil, err
	}
	res := &Result{Record: r.record, RunDir: r.dir, LogDir: r.logDir}

	art, err := s.build(ctx, r)
	if err != nil {
		return res, s.fail(r, err)
	}
	res.Artifact = art

	outcome := status.OutcomeNotRun
	if s.cfg.CheckMode.RunsTests() {
		tests, err := s.test(ctx, r, art)
		if err != nil {
			return res, s.fail(r, err)
		}
		res.Tests = &tests
		outcome = tests.Outcome()
	} else {
		r.log.Info("tests skipped", zap.String("check_mode", string(s.cfg.CheckMode)))
	}

	baselineExists := s.cfg.Baseline().Exists()
	r.record.BaselineExists = baselineExists
	decision, err := status.Reduce(outcome, s.cfg.CheckMode, baselineExists)
	if err != nil {
		return res, s.fail(r, err)
	}
	res.Decision = decision
	r.record.Decision = &decision
	r.events.Emit(events.Decision, events.DecisionData(string(outcome), string(s.cfg.CheckMode),
		baselineExists, decision.OK, decision.Message))
	r.log.Info("decision",
		zap.String("outcome", string(outcome)),
		zap.Bool("baseline_exists", baselineExists),
		zap.Bool("ok", decision.OK),
		zap.String("message", decision.Message))

	if err := s.finish(r, decision.OK, ""); err != nil {
		return res, err
	}
	return res, nil
}

// Build runs the directive and build stages only.
func (s *Service) Build(ctx context.Context) (*Result, error) {
	r, err := s.begin(CommandBuild)
	if err != nil {
		return nil, err
	}
	res := &Result{Record: r.record, RunDir: r.dir, LogDir: r.logDir}

	art, err := s.build(ctx, r)
	if err != nil {
		return res, s.fail(r, err)
	}
	res.Artifact = art
	if err := s.finish(r, true, ""); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) begin(command string) (*run, error) {
	started := s.now()
	id := s.newRunID(started)
	dir, err := s.store.CreateRunDir(id)
	if err != nil {
		return nil, errors.WrapWithDetails(errors.EPersistFailed, "failed to create run directory", err,
			map[string]string{"hint": "check " + config.EnvWorkDir + " is writable"})
	}

	set := directives.Default()
	r := &run{
		id:      id,
		dir:     dir,
		logDir:  s.store.RunLogsDir(id),
		started: started,
		events:  events.NewRecorder(dir, id, s.now),
		log:     s.logger.With(zap.String("run_id", id)),
		record: &store.RunRecord{
			SchemaVersion: store.SchemaVersion,
			RunID:         id,
			Command:       command,
			StartedAt:     started.UTC().Format(time.RFC3339Nano),
			Package:       s.cfg.Package.Name,
			Version:       s.cfg.Package.Version,
			CheckMode:     string(s.cfg.CheckMode),
			Directives:    set.Map(),
			BaselinePath:  s.cfg.BaselinePath,
			LogDir:        s.store.RunLogsDir(id),
		},
	}
	// an unfinished record marks the run as in progress until finish
	if err := s.store.WriteRunRecord(r.record); err != nil {
		return nil, errors.WrapWithDetails(errors.EPersistFailed, "failed to write run record", err,
			map[string]string{"record": s.store.RunRecordPath(id)})
	}
	r.events.Emit(events.RunStarted, events.RunStartedData(command, string(s.cfg.CheckMode),
		s.cfg.Package.Name, s.cfg.Package.Version))
	r.log.Info("run started",
		zap.String("cmd", command),
		zap.String("run_dir", dir),
		zap.String("directives", set.String()))
	return r, nil
}

func (s *Service) build(ctx context.Context, r *run) (artifact.Artifact, error) {
	r.events.Emit(events.StageStarted, events.StageData("build"))
	start := time.Now()

	builder := artifact.NewBuilder(s.cfg, s.runner, r.log)
	art, err := builder.Build(ctx, artifact.BuildOpts{RunDir: r.dir, Directives: directives.Default()})

	r.events.Emit(events.StageFinished, events.StageFinishedData("build", err == nil,
		time.Since(start).Milliseconds(), string(errors.GetCode(err))))
	if err != nil {
		return artifact.Artifact{}, err
	}
	r.record.Artifact = &art
	return art, nil
}

func (s *Service) test(ctx context.Context, r *run, art artifact.Artifact) (testexec.Result, error) {
	r.events.Emit(events.StageStarted, events.StageData("test"))
	start := time.Now()

	res, err := testexec.NewExecutor(s.cfg, s.runner, r.log).Run(ctx, art, r.logDir)

	r.events.Emit(events.StageFinished, events.StageFinishedData("test", err == nil,
		time.Since(start).Milliseconds(), string(errors.GetCode(err))))
	if err != nil {
		return res, err
	}
	r.record.Tests = &res
	r.events.Emit(events.TestsFinished, events.TestsFinishedData(res.ExitCode, len(res.Envs), res.Failed()))
	return res, nil
}

// fail records a fatal error and returns it unchanged. The record write is
// best-effort; the original error takes priority.
func (s *Service) fail(r *run, err error) error {
	msg := err.Error()
	r.record.Error = &msg
	r.log.Error("run failed", zap.String("error_code", string(errors.GetCode(err))), zap.Error(err))
	_ = s.finish(r, false, string(errors.GetCode(err)))
	return err
}

func (s *Service) finish(r *run, ok bool, errorCode string) error {
	finished := s.now()
	r.record.FinishedAt = finished.UTC().Format(time.RFC3339Nano)
	r.record.DurationMS = finished.Sub(r.started).Milliseconds()
	r.events.Emit(events.RunFinished, events.RunFinishedData(ok, r.record.DurationMS, errorCode))

	if err := s.store.WriteRunRecord(r.record); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write run record", err,
			map[string]string{"record": s.store.RunRecordPath(r.id)})
	}
	r.log.Info("run finished", zap.Bool("ok", ok), zap.Int64("duration_ms", r.record.DurationMS))
	return nil
}
