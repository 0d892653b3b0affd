package render

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/NielsdaWheelz/extpipe/internal/events"
	"github.com/NielsdaWheelz/extpipe/internal/store"
)

// ShowPathsData holds the paths for --path output.
type ShowPathsData struct {
	RunDir     string
	LogsDir    string
	EventsPath string
	RecordPath string
	Wheel      string // empty when the build did not complete
}

// PathsFor derives the show paths of a run directory.
func PathsFor(runDir string, rec *store.RunRecord) ShowPathsData {
	d := ShowPathsData{
		RunDir:     runDir,
		LogsDir:    filepath.Join(runDir, "logs"),
		EventsPath: filepath.Join(runDir, events.FileName),
		RecordPath: filepath.Join(runDir, store.RecordFile),
	}
	if rec != nil && rec.Artifact != nil {
		d.Wheel = rec.Artifact.Wheel
	}
	return d
}

// WriteShowPaths writes --path output as key: value lines.
func WriteShowPaths(w io.Writer, data ShowPathsData) error {
	lines := []struct {
		key   string
		value string
	}{
		{"run_dir", data.RunDir},
		{"logs_dir", data.LogsDir},
		{"events_path", data.EventsPath},
		{"record_path", data.RecordPath},
		{"wheel", orNone(data.Wheel)},
	}

	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s: %s\n", line.key, line.value); err != nil {
			return err
		}
	}
	return nil
}

// WriteShowHuman writes a run record as plain key/value lines in fixed order.
// The same layout is printed at the end of run and build.
func WriteShowHuman(w io.Writer, rec *store.RunRecord) error {
	_, _ = fmt.Fprintf(w, "run: %s\n", rec.RunID)
	_, _ = fmt.Fprintf(w, "package: %s %s\n", rec.Package, rec.Version)
	_, _ = fmt.Fprintf(w, "command: %s\n", rec.Command)
	if rec.Command == "run" {
		_, _ = fmt.Fprintf(w, "check: %s\n", rec.CheckMode)
	}

	if rec.Artifact != nil {
		_, _ = fmt.Fprintf(w, "wheel: %s\n", rec.Artifact.Wheel)
		_, _ = fmt.Fprintf(w, "sha256: %s\n", rec.Artifact.SHA256)
	} else {
		_, _ = fmt.Fprintln(w, "wheel: none")
	}

	if rec.Command == "run" {
		_, _ = fmt.Fprintf(w, "tests: %s\n", testsLine(rec))
		baseline := "absent"
		if rec.BaselineExists {
			baseline = "present"
		}
		_, _ = fmt.Fprintf(w, "baseline: %s (%s)\n", baseline, rec.BaselinePath)
	}

	_, _ = fmt.Fprintf(w, "status: %s\n", RunStatus(rec))
	if msg := RunMessage(rec); msg != "" {
		_, _ = fmt.Fprintf(w, "message: %s\n", msg)
	}
	_, err := fmt.Fprintf(w, "logs: %s\n", rec.LogDir)
	return err
}

func testsLine(rec *store.RunRecord) string {
	if rec.Tests == nil {
		return "not run"
	}
	line := fmt.Sprintf("%d envs, exit %d", len(rec.Tests.Envs), rec.Tests.ExitCode)
	if failed := rec.Tests.Failed(); len(failed) > 0 {
		line += ", failed: " + strings.Join(failed, " ")
	}
	return line
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
