package pipeline

import (
	"bufio"
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
	"github.com/NielsdaWheelz/extpipe/internal/events"
	"github.com/NielsdaWheelz/extpipe/internal/exec"
	"github.com/NielsdaWheelz/extpipe/internal/status"
	"github.com/NielsdaWheelz/extpipe/internal/store"
	"github.com/NielsdaWheelz/extpipe/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	cfg    *config.Config
	runner *testutil.FakeRunner
	svc    *Service
}

// newFixture builds a Service whose tools succeed at building and whose
// test environments exit with testExit.
func newFixture(t *testing.T, mode status.CheckMode, testExit int) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Root:          root,
		SourceDir:     filepath.Join(root, "src"),
		ArtifactCache: filepath.Join(root, "upstream"),
		BaselinePath:  filepath.Join(root, "src", "known-test-failures.json"),
		WorkDir:       filepath.Join(root, "work"),
		CheckMode:     mode,
		NoIndex:       true,
		Environments:  []string{"py39", "py310"},
		Parallel:      2,
		Package:       config.PackageIdentity{Name: "mypkg", Version: "1.0"},
		Commands: config.Commands{
			Sdist: config.Command{"mk-sdist", "{outdir}"},
			Wheel: config.Command{"mk-wheel", "{outdir}", "{sdist}"},
			Test:  config.Command{"tox", "-e", "{env}", "--installpkg", "{wheel}"},
		},
	}

	runner := &testutil.FakeRunner{Handler: func(call testutil.FakeCall) testutil.FakeResponse {
		switch call.Name {
		case "mk-sdist":
			writeFile(t, filepath.Join(call.Args[0], "mypkg-1.0.tar.gz"), "sdist")
		case "mk-wheel":
			writeFile(t, filepath.Join(call.Args[0], "mypkg-1.0-cp311-cp311-linux_x86_64.whl"), "wheel")
		case "tox":
			out := "sage -t --long src/mypkg/a.py\n    [3 tests, 0.1 s]\n"
			if testExit != 0 {
				out += "sage -t --long src/mypkg/b.py  # 1 doctest failed\n"
			}
			return testutil.FakeResponse{Result: exec.CmdResult{ExitCode: testExit, Stdout: out}}
		}
		return testutil.FakeResponse{}
	}}

	svc := New(cfg, runner, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	return &fixture{cfg: cfg, runner: runner, svc: svc}
}

func (f *fixture) withBaseline(t *testing.T) {
	t.Helper()
	writeFile(t, f.cfg.BaselinePath, `{"src/mypkg/b.py": {"failed": true}}`)
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

func testLogs(t *testing.T, logDir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(logDir, "test-*.log"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		mode        status.CheckMode
		testExit    int
		baseline    bool
		wantOK      bool
		wantMessage string
		wantTests   bool
	}{
		{"skip", status.CheckSkip, 0, false, true, status.MsgTestsNotRun, false},
		{"skip with failing tests never runs them", status.CheckSkip, 1, true, true, status.MsgTestsNotRun, false},
		{"enforce pass", status.CheckEnforce, 0, false, true, status.MsgPassed, true},
		{"enforce pass with baseline", status.CheckEnforce, 0, true, true, status.MsgPassedModuloBaseline, true},
		{"enforce fail without baseline", status.CheckEnforce, 1, false, false, status.MsgFailuresTesting, true},
		{"enforce fail with baseline", status.CheckEnforce, 1, true, false, status.MsgNewFailures, true},
		{"warn fail", status.CheckWarn, 1, false, true, status.MsgFailuresIgnored, true},
		{"warn fail with baseline", status.CheckWarn, 1, true, true, status.MsgFailuresIgnored, true},
		{"warn pass", status.CheckWarn, 0, false, true, status.MsgPassed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mode, tt.testExit)
			if tt.baseline {
				f.withBaseline(t)
			}

			res, err := f.svc.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Decision.OK != tt.wantOK || res.Decision.Message != tt.wantMessage {
				t.Errorf("Decision = %+v, want OK=%v %q", res.Decision, tt.wantOK, tt.wantMessage)
			}
			if got := len(f.runner.CallsTo("tox")) > 0; got != tt.wantTests {
				t.Errorf("tests ran = %v, want %v", got, tt.wantTests)
			}
			logs := testLogs(t, res.LogDir)
			if tt.wantTests && len(logs) != 2 {
				t.Errorf("test logs = %v, want 2", logs)
			}
			if !tt.wantTests && len(logs) != 0 {
				t.Errorf("test logs produced in skip mode: %v", logs)
			}

			err = res.Err()
			if tt.wantOK {
				if err != nil {
					t.Errorf("Err() = %v, want nil", err)
				}
				if errors.ExitCode(err) != 0 {
					t.Errorf("exit code = %d, want 0", errors.ExitCode(err))
				}
			} else {
				if errors.GetCode(err) != errors.ETestsFailed || errors.ExitCode(err) != 1 {
					t.Errorf("Err() = %v (exit %d), want E_TESTS_FAILED exit 1", err, errors.ExitCode(err))
				}
				if !strings.Contains(err.Error(), tt.wantMessage) {
					t.Errorf("error %q does not carry the decision message", err)
				}
			}
		})
	}
}

func TestRun_WritesRunRecordAndEvents(t *testing.T) {
	f := newFixture(t, status.CheckEnforce, 1)

	res, err := f.svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec, err := store.ReadRunRecord(filepath.Join(res.RunDir, store.RecordFile))
	if err != nil {
		t.Fatalf("run record: %v", err)
	}
	if rec.RunID != res.Record.RunID || rec.Command != CommandRun || rec.CheckMode != "enforce" {
		t.Errorf("record identity = %+v", rec)
	}
	if rec.Artifact == nil || rec.Tests == nil || rec.Decision == nil {
		t.Fatalf("record incomplete: %+v", rec)
	}
	if rec.Tests.ExitCode != 1 || rec.Decision.OK {
		t.Errorf("record tests=%+v decision=%+v", rec.Tests, rec.Decision)
	}
	if rec.Error != nil {
		t.Errorf("record error = %q, want nil", *rec.Error)
	}
	if rec.Directives["warning_errors"] != "False" {
		t.Errorf("record directives = %v", rec.Directives)
	}
	if !strings.HasPrefix(filepath.Base(res.RunDir), store.RunDirPrefix+"20261019-090000-") {
		t.Errorf("run dir = %s", res.RunDir)
	}

	names := eventNames(t, filepath.Join(res.RunDir, events.FileName))
	want := []string{
		events.RunStarted,
		events.StageStarted, events.StageFinished,
		events.StageStarted, events.StageFinished, events.TestsFinished,
		events.Decision,
		events.RunFinished,
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", names, want)
	}
}

func TestRun_BuildFailureAbortsBeforeTests(t *testing.T) {
	f := newFixture(t, status.CheckEnforce, 0)
	f.runner.Handler = func(call testutil.FakeCall) testutil.FakeResponse {
		if call.Name == "mk-sdist" {
			writeFile(t, filepath.Join(call.Args[0], "mypkg-1.0.tar.gz"), "sdist")
			return testutil.FakeResponse{}
		}
		return testutil.FakeResponse{Result: exec.CmdResult{ExitCode: 1, Stderr: "Error compiling Cython file:\n"}}
	}

	res, err := f.svc.Run(context.Background())
	if errors.GetCode(err) != errors.ECompileFailed {
		t.Fatalf("Run() error = %v, want E_COMPILE_FAILED", err)
	}
	if len(f.runner.CallsTo("tox")) != 0 {
		t.Error("tests ran after a build failure")
	}

	rec, rerr := store.ReadRunRecord(filepath.Join(res.RunDir, store.RecordFile))
	if rerr != nil {
		t.Fatalf("run record: %v", rerr)
	}
	if rec.Error == nil || !strings.Contains(*rec.Error, "E_COMPILE_FAILED") {
		t.Errorf("record error = %v", rec.Error)
	}
	if rec.Decision != nil || rec.Artifact != nil {
		t.Errorf("aborted run recorded decision/artifact: %+v", rec)
	}
}

func TestRun_TestExecFailureIsFatal(t *testing.T) {
	f := newFixture(t, status.CheckWarn, 0)
	build := f.runner.Handler
	f.runner.Handler = func(call testutil.FakeCall) testutil.FakeResponse {
		if call.Name == "mk-wheel" {
			// a directory where the py39 log file must go
			if err := os.MkdirAll(filepath.Join(call.Opts.Dir, "logs", "test-py39.log"), 0o755); err != nil {
				t.Error(err)
			}
		}
		return build(call)
	}

	_, err := f.svc.Run(context.Background())
	if errors.GetCode(err) != errors.ETestExecFailed {
		t.Fatalf("Run() error = %v, want E_TEST_EXEC_FAILED", err)
	}
}

func TestBuild_StoresArtifactWithoutTests(t *testing.T) {
	f := newFixture(t, status.CheckEnforce, 1)

	res, err := f.svc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(f.runner.CallsTo("tox")) != 0 {
		t.Error("build ran tests")
	}
	if _, err := os.Stat(res.Artifact.Wheel); err != nil {
		t.Errorf("stored wheel missing: %v", err)
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v for a build-only run", res.Err())
	}
	if !res.Record.OK() {
		t.Error("build record not OK")
	}
}

func TestRun_WorkDirUnwritable(t *testing.T) {
	f := newFixture(t, status.CheckSkip, 0)
	writeFile(t, f.cfg.WorkDir, "not a directory")

	_, err := f.svc.Run(context.Background())
	if errors.GetCode(err) != errors.EPersistFailed {
		t.Fatalf("Run() error = %v, want E_PERSIST_FAILED", err)
	}
	if len(f.runner.Calls()) != 0 {
		t.Error("commands ran without a run directory")
	}
}

func eventNames(t *testing.T, path string) []string {
	t.Helper()
	fh, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()

	var names []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		var e events.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad event line %q: %v", sc.Text(), err)
		}
		names = append(names, e.Event)
	}
	return names
}
