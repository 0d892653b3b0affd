package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/NielsdaWheelz/extpipe/internal/events"
)

// RunEntry represents a discovered run directory with its parsed record.
type RunEntry struct {
	// RunID is derived from the directory name (canonical identity).
	RunID string

	// Broken indicates run.json is missing, unreadable or invalid.
	// When true, Record is nil but RunID/RunDir are still populated.
	Broken bool

	Record *RunRecord

	// RunDir is the absolute path to the run directory.
	RunDir string

	// LastActivity is the newest modification time of the events log, the
	// run record and the stage logs; zero when none exists.
	LastActivity time.Time
}

// ScanRuns discovers run directories under workDir.
// Returns entries sorted by RunID asc, which is chronological.
// A missing workDir results in an empty slice (not error).
func ScanRuns(workDir string) ([]RunEntry, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunEntry
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), RunDirPrefix) {
			continue
		}
		runID := strings.TrimPrefix(entry.Name(), RunDirPrefix)
		if runID == "" {
			continue
		}
		runDir := filepath.Join(workDir, entry.Name())
		run := RunEntry{RunID: runID, RunDir: runDir, LastActivity: lastActivity(runDir)}

		rec, err := ReadRunRecord(filepath.Join(runDir, RecordFile))
		if err != nil || rec.SchemaVersion == "" || rec.StartedAt == "" {
			run.Broken = true
		} else {
			run.Record = rec
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	return runs, nil
}

// lastActivity includes the stage logs: test environments write only to
// their logs while they run.
func lastActivity(runDir string) time.Time {
	paths := []string{filepath.Join(runDir, events.FileName), filepath.Join(runDir, RecordFile)}
	if logs, err := filepath.Glob(filepath.Join(runDir, "logs", "*.log")); err == nil {
		paths = append(paths, logs...)
	}

	var latest time.Time
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil && st.ModTime().After(latest) {
			latest = st.ModTime()
		}
	}
	return latest
}

// ReadRunRecord reads and parses a run.json.
func ReadRunRecord(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
