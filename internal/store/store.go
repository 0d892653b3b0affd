// Package store lays out run directories under the work directory and
// persists the run record of each pipeline invocation.
package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/NielsdaWheelz/extpipe/internal/fs"
)

// RunDirPrefix prefixes every run directory name; the rest is the run id.
const RunDirPrefix = "extpipe-run-"

// RecordFile is the run record's file name inside a run directory.
const RecordFile = "run.json"

// Store locates run directories under WorkDir.
type Store struct {
	WorkDir string
	Now     func() time.Time // injectable clock for deterministic tests
}

// NewStore creates a Store rooted at workDir.
func NewStore(workDir string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{WorkDir: workDir, Now: now}
}

// RunDir returns the directory for a run.
// Format: <workdir>/extpipe-run-<run_id>/
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.WorkDir, RunDirPrefix+runID)
}

// RunLogsDir returns the logs directory for a run.
// Format: <workdir>/extpipe-run-<run_id>/logs/
func (s *Store) RunLogsDir(runID string) string {
	return filepath.Join(s.RunDir(runID), "logs")
}

// RunRecordPath returns the path to a run's run.json.
func (s *Store) RunRecordPath(runID string) string {
	return filepath.Join(s.RunDir(runID), RecordFile)
}

// CreateRunDir creates the run directory and its logs directory.
// An existing directory is an error; run ids are never reused.
func (s *Store) CreateRunDir(runID string) (string, error) {
	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		return "", err
	}
	dir := s.RunDir(runID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.Mkdir(s.RunLogsDir(runID), 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// WriteRunRecord writes run.json atomically.
func (s *Store) WriteRunRecord(rec *RunRecord) error {
	return fs.WriteJSONAtomic(s.RunRecordPath(rec.RunID), rec, 0o644)
}
