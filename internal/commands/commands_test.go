package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/NielsdaWheelz/extpipe/internal/config"
	"github.com/NielsdaWheelz/extpipe/internal/errors"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
	"github.com/NielsdaWheelz/extpipe/internal/render"
	"github.com/NielsdaWheelz/extpipe/internal/store"
	"github.com/NielsdaWheelz/extpipe/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const helpersYAML = `package:
  name: mypkg
  version: "1.0"
commands:
  sdist: [mk-sdist, "{outdir}"]
  wheel: [mk-wheel, "{outdir}", "{sdist}"]
  test: [tox, -e, "{env}", --installpkg, "{wheel}"]
environments: [py39, py310]
`

const failingLine = "sage -t --long src/mypkg/b.py  # 1 doctest failed"

type project struct {
	root   string
	env    config.MapEnv
	runner *testutil.FakeRunner
}

// newProject lays out a package root and a runner whose tools build
// successfully and whose test environments exit with testExit.
func newProject(t *testing.T, testExit int) *project {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, config.DefaultHelpersPath), helpersYAML)
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}

	runner := &testutil.FakeRunner{Handler: func(call testutil.FakeCall) testutil.FakeResponse {
		switch call.Name {
		case "mk-sdist":
			writeFile(t, filepath.Join(call.Args[0], "mypkg-1.0.tar.gz"), "sdist")
		case "mk-wheel":
			writeFile(t, filepath.Join(call.Args[0], "mypkg-1.0-py3-none-any.whl"), "wheel")
		case "tox":
			out := "sage -t --long src/mypkg/a.py\n"
			if testExit != 0 {
				out += failingLine + "\n"
			}
			return testutil.FakeResponse{Result: exec.CmdResult{ExitCode: testExit, Stdout: out}}
		}
		return testutil.FakeResponse{}
	}}

	return &project{
		root: root,
		env: config.MapEnv{
			config.EnvRoot:    root,
			config.EnvWorkDir: filepath.Join(root, "work"),
		},
		runner: runner,
	}
}

func (p *project) with(key, value string) config.MapEnv {
	env := config.MapEnv{}
	for k, v := range p.env {
		env[k] = v
	}
	env[key] = value
	return env
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_Passing(t *testing.T) {
	p := newProject(t, 0)
	var stdout, stderr bytes.Buffer

	err := Run(context.Background(), p.runner, p.with(config.EnvCheck, "enforce"), nil, RunOpts{}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"status: ok\n", "message: passed\n", "failures:\n", "test-py39.log\n", "test-py310.log\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestRun_FailingPrintsReportAndFails(t *testing.T) {
	p := newProject(t, 1)
	var stdout, stderr bytes.Buffer

	err := Run(context.Background(), p.runner, p.with(config.EnvCheck, "enforce"), nil, RunOpts{}, &stdout, &stderr)
	if errors.GetCode(err) != errors.ETestsFailed || errors.ExitCode(err) != 1 {
		t.Fatalf("Run() error = %v (exit %d), want E_TESTS_FAILED exit 1", err, errors.ExitCode(err))
	}
	if n := strings.Count(stdout.String(), failingLine); n != 2 {
		t.Errorf("failure line printed %d times, want once per env:\n%s", n, stdout.String())
	}
}

func TestRun_WarnModeReportsButPasses(t *testing.T) {
	p := newProject(t, 1)
	var stdout, stderr bytes.Buffer

	err := Run(context.Background(), p.runner, p.env, nil, RunOpts{Check: "warn"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(stdout.String(), failingLine) {
		t.Errorf("failure report missing in warn mode:\n%s", stdout.String())
	}
}

func TestRun_CheckFlagOverridesEnv(t *testing.T) {
	p := newProject(t, 1)
	var stdout, stderr bytes.Buffer

	err := Run(context.Background(), p.runner, p.with(config.EnvCheck, "enforce"), nil, RunOpts{Check: "skip"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(p.runner.CallsTo("tox")) != 0 {
		t.Error("tests ran with --check skip")
	}
	if strings.Contains(stdout.String(), "failures:") {
		t.Errorf("failure report printed without tests:\n%s", stdout.String())
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	p := newProject(t, 0)

	err := Run(context.Background(), p.runner, p.env, nil, RunOpts{Check: "strict"}, &bytes.Buffer{}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.EInvalidConfig {
		t.Errorf("invalid check: code = %s, want E_INVALID_CONFIG", errors.GetCode(err))
	}

	env := config.MapEnv{config.EnvRoot: t.TempDir()}
	err = Run(context.Background(), p.runner, env, nil, RunOpts{}, &bytes.Buffer{}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.EHelpersMissing {
		t.Errorf("no helpers: code = %s, want E_HELPERS_MISSING", errors.GetCode(err))
	}
	if len(p.runner.Calls()) != 0 {
		t.Error("commands ran despite a configuration error")
	}
}

func TestRun_BuildFailurePrintsRunLocation(t *testing.T) {
	p := newProject(t, 0)
	p.runner.Handler = func(testutil.FakeCall) testutil.FakeResponse {
		return testutil.FakeResponse{Result: exec.CmdResult{ExitCode: 1}}
	}
	var stdout, stderr bytes.Buffer

	err := Run(context.Background(), p.runner, p.env, nil, RunOpts{}, &stdout, &stderr)
	if errors.GetCode(err) != errors.ESdistFailed {
		t.Fatalf("Run() error = %v, want E_SDIST_FAILED", err)
	}
	if !strings.Contains(stderr.String(), "run_dir: ") {
		t.Errorf("stderr missing run location:\n%s", stderr.String())
	}
}

func TestBuild(t *testing.T) {
	p := newProject(t, 0)
	var stdout bytes.Buffer

	if err := Build(context.Background(), p.runner, p.env, nil, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := "wheel: " + filepath.Join(p.root, "upstream", "mypkg-1.0-py3-none-any.whl") + "\n"
	if !strings.Contains(stdout.String(), want) {
		t.Errorf("stdout missing %q:\n%s", want, stdout.String())
	}
	if len(p.runner.CallsTo("tox")) != 0 {
		t.Error("build ran tests")
	}
}

func TestDirectives(t *testing.T) {
	var stdout bytes.Buffer
	if err := Directives(DirectivesOpts{}, &stdout); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "warning_errors=False\n") {
		t.Errorf("text output:\n%s", stdout.String())
	}

	err := Directives(DirectivesOpts{Format: "xml"}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.EUsage || errors.ExitCode(err) != 2 {
		t.Errorf("unknown format: err = %v, want E_USAGE exit 2", err)
	}
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "test-py39.log")
	writeFile(t, log, "sage -t a.py\n"+failingLine+"\n"+
		"sage -t --long c.py  # 2 doctests failed [failed in baseline]\n")

	var stdout, stderr bytes.Buffer
	if err := Report(config.MapEnv{}, ReportOpts{Logs: []string{log}}, &stdout, &stderr); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	want := "== " + log + "\n  2: " + failingLine + "\n"
	if stdout.String() != want {
		t.Errorf("stdout = %q, want %q", stdout.String(), want)
	}
	if stderr.String() != "1 failure lines in 1 logs\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestReport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opts     ReportOpts
		wantCode errors.Code
	}{
		{"no logs", ReportOpts{}, errors.EUsage},
		{"bad pattern", ReportOpts{Logs: []string{"x.log"}, Pattern: "("}, errors.EUsage},
		{"missing log", ReportOpts{Logs: []string{"/nonexistent/test.log"}}, errors.ENotFound},
		{"unknown run", ReportOpts{Run: "nope"}, errors.ENotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := config.MapEnv{config.EnvWorkDir: t.TempDir()}
			err := Report(env, tt.opts, &bytes.Buffer{}, &bytes.Buffer{})
			if errors.GetCode(err) != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", errors.GetCode(err), tt.wantCode, err)
			}
		})
	}
}

func TestReport_ByRun(t *testing.T) {
	p := newProject(t, 1)
	env := p.with(config.EnvCheck, "warn")
	if err := Run(context.Background(), p.runner, env, nil, RunOpts{}, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	runs := scan(t, env)

	var stdout bytes.Buffer
	if err := Report(env, ReportOpts{Run: runs[0].RunID}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if n := strings.Count(stdout.String(), "== "); n != 2 {
		t.Errorf("reported %d logs, want 2:\n%s", n, stdout.String())
	}
}

func TestDoctor(t *testing.T) {
	p := newProject(t, 0)
	var stdout bytes.Buffer

	if err := Doctor(p.runner, p.env, &stdout); err != nil {
		t.Fatalf("Doctor() error = %v", err)
	}
	out := stdout.String()
	for _, want := range []string{
		"package: mypkg 1.0\n",
		"environments: py39,py310\n",
		"tool.test: tox (/usr/bin/tox)\n",
		"baseline: " + filepath.Join(p.root, "src", "known-test-failures.json") + " (absent)\n",
		"status: ok\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestDoctor_SourceTreeAndCache(t *testing.T) {
	p := newProject(t, 0)
	cfg, err := config.Load(p.env)
	if err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if err := Doctor(p.runner, p.env, &stdout); err != nil {
		t.Fatalf("Doctor() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "artifact_cache: "+cfg.ArtifactCache+" (absent)\n") {
		t.Errorf("stdout before cache creation:\n%s", stdout.String())
	}

	if err := os.MkdirAll(cfg.ArtifactCache, 0o755); err != nil {
		t.Fatal(err)
	}
	stdout.Reset()
	if err := Doctor(p.runner, p.env, &stdout); err != nil {
		t.Fatalf("Doctor() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "artifact_cache: "+cfg.ArtifactCache+" (present)\n") {
		t.Errorf("stdout after cache creation:\n%s", stdout.String())
	}

	if err := os.RemoveAll(cfg.SourceDir); err != nil {
		t.Fatal(err)
	}
	err = Doctor(p.runner, p.env, &bytes.Buffer{})
	if errors.GetCode(err) != errors.EInvalidConfig {
		t.Errorf("missing source tree: code = %s, want E_INVALID_CONFIG", errors.GetCode(err))
	}
}

func TestDoctor_MissingTool(t *testing.T) {
	p := newProject(t, 0)
	p.runner.Missing = map[string]bool{"mk-wheel": true}
	var stdout bytes.Buffer

	err := Doctor(p.runner, p.env, &stdout)
	pe, ok := errors.AsPipelineError(err)
	if !ok || pe.Code != errors.EToolNotInstalled {
		t.Fatalf("Doctor() error = %v, want E_TOOL_NOT_INSTALLED", err)
	}
	if pe.Details["stage"] != "wheel" {
		t.Errorf("stage = %q, want wheel", pe.Details["stage"])
	}
	if !strings.Contains(stdout.String(), "tool.wheel: mk-wheel (MISSING)\n") {
		t.Errorf("stdout:\n%s", stdout.String())
	}
	if strings.Contains(stdout.String(), "status: ok") {
		t.Error("status ok printed despite a missing tool")
	}
}

func scan(t *testing.T, env config.Env) []store.RunEntry {
	t.Helper()
	runs, err := store.ScanRuns(config.WorkDir(env))
	if err != nil {
		t.Fatal(err)
	}
	return runs
}

// twoRuns records two build runs and returns the project.
func twoRuns(t *testing.T) *project {
	t.Helper()
	p := newProject(t, 0)
	for range 2 {
		if err := Build(context.Background(), p.runner, p.env, nil, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
	}
	return p
}

func TestLS(t *testing.T) {
	p := twoRuns(t)

	var stdout bytes.Buffer
	if err := LS(p.env, LSOpts{JSON: true}, &stdout); err != nil {
		t.Fatalf("LS() error = %v", err)
	}
	var got []render.RunSummary
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("parse: %v\n%s", err, stdout.String())
	}
	if len(got) != 2 {
		t.Fatalf("runs = %d, want 2", len(got))
	}
	if got[0].RunID < got[1].RunID {
		t.Errorf("runs not newest first: %s, %s", got[0].RunID, got[1].RunID)
	}
	for _, s := range got {
		if s.Status != render.StatusOK || s.Command != "build" {
			t.Errorf("summary = %+v", s)
		}
	}

	stdout.Reset()
	if err := LS(p.env, LSOpts{}, &stdout); err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(stdout.String(), "\n"); lines != 3 {
		t.Errorf("human output has %d lines, want header + 2:\n%s", lines, stdout.String())
	}
}

func TestLS_Empty(t *testing.T) {
	var stdout bytes.Buffer
	env := config.MapEnv{config.EnvWorkDir: filepath.Join(t.TempDir(), "missing")}
	if err := LS(env, LSOpts{}, &stdout); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "no runs found\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestShow(t *testing.T) {
	p := twoRuns(t)
	runs := scan(t, p.env)

	var stdout bytes.Buffer
	if err := Show(p.env, ShowOpts{RunID: runs[0].RunID}, &stdout); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "run: "+runs[0].RunID+"\n") {
		t.Errorf("stdout:\n%s", stdout.String())
	}

	stdout.Reset()
	if err := Show(p.env, ShowOpts{RunID: runs[1].RunID, JSON: true}, &stdout); err != nil {
		t.Fatal(err)
	}
	var rec store.RunRecord
	if err := json.Unmarshal(stdout.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.RunID != runs[1].RunID || rec.Artifact == nil {
		t.Errorf("record = %+v", rec)
	}
}

func TestShow_Resolution(t *testing.T) {
	p := twoRuns(t)
	runs := scan(t, p.env)

	// both ids start with the same date
	err := Show(p.env, ShowOpts{RunID: runs[0].RunID[:4]}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.ERunIDAmbiguous {
		t.Errorf("shared prefix: code = %s, want E_RUN_ID_AMBIGUOUS", errors.GetCode(err))
	}

	err = Show(p.env, ShowOpts{RunID: "19990101"}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.ENotFound {
		t.Errorf("unknown id: code = %s, want E_NOT_FOUND", errors.GetCode(err))
	}

	err = Show(p.env, ShowOpts{}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.EUsage {
		t.Errorf("empty id: code = %s, want E_USAGE", errors.GetCode(err))
	}
}

func TestShow_BrokenRun(t *testing.T) {
	work := t.TempDir()
	runDir := filepath.Join(work, store.RunDirPrefix+"20260101-000000-deadbeef")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	env := config.MapEnv{config.EnvWorkDir: work}

	err := Show(env, ShowOpts{RunID: "2026"}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.ENotFound {
		t.Errorf("code = %s, want E_NOT_FOUND", errors.GetCode(err))
	}

	var stdout bytes.Buffer
	if err := Show(env, ShowOpts{RunID: "2026", Path: true}, &stdout); err != nil {
		t.Fatalf("Show(--path) error = %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "run_dir: "+runDir+"\n") {
		t.Errorf("stdout:\n%s", stdout.String())
	}
}

func TestClean(t *testing.T) {
	p := twoRuns(t)
	runs := scan(t, p.env)

	var stdout bytes.Buffer
	if err := Clean(p.env, CleanOpts{Keep: 1, DryRun: true}, &stdout); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "would remove "+runs[0].RunDir+"\n" {
		t.Errorf("dry run output = %q", stdout.String())
	}
	if len(scan(t, p.env)) != 2 {
		t.Fatal("dry run removed runs")
	}

	stdout.Reset()
	if err := Clean(p.env, CleanOpts{Keep: 1}, &stdout); err != nil {
		t.Fatal(err)
	}
	left := scan(t, p.env)
	if len(left) != 1 || left[0].RunID != runs[1].RunID {
		t.Errorf("remaining runs = %+v, want only the newest", left)
	}

	stdout.Reset()
	if err := Clean(p.env, CleanOpts{Keep: 1}, &stdout); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "nothing to clean\n" {
		t.Errorf("output = %q", stdout.String())
	}

	err := Clean(p.env, CleanOpts{Keep: -1}, &bytes.Buffer{})
	if errors.GetCode(err) != errors.EUsage {
		t.Errorf("negative keep: code = %s, want E_USAGE", errors.GetCode(err))
	}
}

// unfinishedRun records a run without a finish time whose record was last
// written at recordTime. A non-zero logTime also writes a test log with that
// modification time.
func unfinishedRun(t *testing.T, work, runID string, recordTime, logTime time.Time) string {
	t.Helper()
	s := store.NewStore(work, nil)
	if _, err := s.CreateRunDir(runID); err != nil {
		t.Fatal(err)
	}
	rec := &store.RunRecord{
		SchemaVersion: store.SchemaVersion,
		RunID:         runID,
		Command:       "run",
		StartedAt:     recordTime.UTC().Format(time.RFC3339Nano),
		CheckMode:     "enforce",
	}
	if err := s.WriteRunRecord(rec); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(s.RunRecordPath(runID), recordTime, recordTime); err != nil {
		t.Fatal(err)
	}
	if !logTime.IsZero() {
		logPath := filepath.Join(s.RunLogsDir(runID), "test-py39.log")
		writeFile(t, logPath, "sage -t --long src/mypkg/a.py\n")
		if err := os.Chtimes(logPath, logTime, logTime); err != nil {
			t.Fatal(err)
		}
	}
	return s.RunDir(runID)
}

func TestLS_LongTestStageIsNotStalled(t *testing.T) {
	work := t.TempDir()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	unfinishedRun(t, work, "20261019-090000-aaaaaaaa", now.Add(-3*time.Hour), now.Add(-time.Minute))
	unfinishedRun(t, work, "20261019-080000-bbbbbbbb", now.Add(-4*time.Hour), time.Time{})
	env := config.MapEnv{config.EnvWorkDir: work}

	var stdout bytes.Buffer
	if err := LS(env, LSOpts{JSON: true, Now: now}, &stdout); err != nil {
		t.Fatalf("LS() error = %v", err)
	}
	var got []render.RunSummary
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("parse: %v\n%s", err, stdout.String())
	}
	if len(got) != 2 {
		t.Fatalf("runs = %d, want 2", len(got))
	}
	if got[0].Status != render.StatusRunning {
		t.Errorf("run writing its test log: status = %q, want %q", got[0].Status, render.StatusRunning)
	}
	if got[1].Status != render.StatusStalled {
		t.Errorf("silent run: status = %q, want %q", got[1].Status, render.StatusStalled)
	}
}

func TestClean_SkipsRunInProgress(t *testing.T) {
	p := twoRuns(t)
	work := config.WorkDir(p.env)
	now := time.Now()
	active := unfinishedRun(t, work, "20200101-000000-aaaaaaaa", now.Add(-time.Minute), time.Time{})
	stalled := unfinishedRun(t, work, "20200101-000000-bbbbbbbb", now.Add(-3*time.Hour), time.Time{})

	var stdout bytes.Buffer
	if err := Clean(p.env, CleanOpts{Now: now}, &stdout); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "skipped "+active+" (in progress)\n") {
		t.Errorf("stdout:\n%s", stdout.String())
	}

	left := scan(t, p.env)
	if len(left) != 1 || left[0].RunDir != active {
		t.Errorf("remaining runs = %+v, want only the active run", left)
	}
	if _, err := os.Stat(stalled); !os.IsNotExist(err) {
		t.Errorf("stalled run not removed: %v", err)
	}
}
