// Package events provides per-run event logging for extpipe.
// Events are stored in an append-only events.jsonl inside the run directory.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the events file inside a run directory.
const FileName = "events.jsonl"

// Event names.
const (
	RunStarted    = "run_started"
	StageStarted  = "stage_started"
	StageFinished = "stage_finished"
	TestsFinished = "tests_finished"
	Decision      = "decision"
	RunFinished   = "run_finished"
)

// Event represents a single event in events.jsonl.
// This is the public contract for the events file format.
type Event struct {
	SchemaVersion string         `json:"schema_version"`
	Timestamp     string         `json:"timestamp"` // RFC3339
	RunID         string         `json:"run_id"`
	Event         string         `json:"event"`
	Data          map[string]any `json:"data,omitempty"`
}

// AppendEvent appends a single event to the events.jsonl file.
// The file is created lazily if it doesn't exist.
// Each event is written as a single JSON line followed by newline.
//
// Best-effort: errors are returned but callers should typically ignore them
// and continue with the main operation.
func AppendEvent(path string, e Event) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Recorder appends events for one run. Safe for concurrent use.
// A nil *Recorder discards events.
type Recorder struct {
	path  string
	runID string
	now   func() time.Time

	mu sync.Mutex
}

// NewRecorder returns a Recorder writing to runDir/events.jsonl.
func NewRecorder(runDir, runID string, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{path: filepath.Join(runDir, FileName), runID: runID, now: now}
}

// Path returns the events file path.
func (r *Recorder) Path() string { return r.path }

// Emit appends an event, best-effort.
func (r *Recorder) Emit(event string, data map[string]any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = AppendEvent(r.path, Event{
		SchemaVersion: "1.0",
		Timestamp:     r.now().UTC().Format(time.RFC3339),
		RunID:         r.runID,
		Event:         event,
		Data:          data,
	})
}

// RunStartedData returns the data map for a run_started event.
func RunStartedData(cmd, checkMode, pkg, version string) map[string]any {
	return map[string]any{
		"cmd":        cmd,
		"check_mode": checkMode,
		"package":    pkg,
		"version":    version,
	}
}

// StageData returns the data map for a stage_started event.
func StageData(stage string) map[string]any {
	return map[string]any{"stage": stage}
}

// StageFinishedData returns the data map for a stage_finished event.
// errorCode should be empty or an E_* string.
func StageFinishedData(stage string, ok bool, durationMS int64, errorCode string) map[string]any {
	data := map[string]any{
		"stage":       stage,
		"ok":          ok,
		"duration_ms": durationMS,
	}
	if errorCode != "" {
		data["error_code"] = errorCode
	}
	return data
}

// TestsFinishedData returns the data map for a tests_finished event.
func TestsFinishedData(exitCode int, envs int, failed []string) map[string]any {
	if failed == nil {
		failed = []string{}
	}
	return map[string]any{
		"exit_code": exitCode,
		"envs":      envs,
		"failed":    failed,
	}
}

// DecisionData returns the data map for a decision event.
func DecisionData(outcome, checkMode string, baselineExists, ok bool, message string) map[string]any {
	return map[string]any{
		"outcome":         outcome,
		"check_mode":      checkMode,
		"baseline_exists": baselineExists,
		"ok":              ok,
		"message":         message,
	}
}

// RunFinishedData returns the data map for a run_finished event.
func RunFinishedData(ok bool, durationMS int64, errorCode string) map[string]any {
	data := map[string]any{
		"ok":          ok,
		"duration_ms": durationMS,
	}
	if errorCode != "" {
		data["error_code"] = errorCode
	}
	return data
}
