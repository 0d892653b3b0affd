// Package runlog creates the per-stage log files of a pipeline run.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Header describes the command whose output follows in the log.
type Header struct {
	Title   string
	Command []string
	Dir     string
	Env     []string // extra variables set for the command, KEY=VALUE
	Time    time.Time
}

// Create truncates or creates path, creating parent directories, and writes
// the header. The caller owns the returned file.
func Create(path string, h Header) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if h.Time.IsZero() {
		h.Time = time.Now()
	}
	// best-effort diagnostic output
	_, _ = fmt.Fprintf(f, "# extpipe %s log\n", h.Title)
	_, _ = fmt.Fprintf(f, "# timestamp: %s\n", h.Time.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(f, "# command: %s\n", strings.Join(h.Command, " "))
	if h.Dir != "" {
		_, _ = fmt.Fprintf(f, "# cwd: %s\n", h.Dir)
	}
	for _, kv := range h.Env {
		_, _ = fmt.Fprintf(f, "# env: %s\n", kv)
	}
	_, _ = fmt.Fprintf(f, "# ---\n\n")
	return f, nil
}

// Footer appends the exit status and duration to an open log.
func Footer(f *os.File, exitCode int, d time.Duration) {
	_, _ = fmt.Fprintf(f, "\n# ---\n# exit_code: %d\n# duration: %s\n", exitCode, d.Round(time.Millisecond))
}
