package store

import (
	"github.com/NielsdaWheelz/extpipe/internal/artifact"
	"github.com/NielsdaWheelz/extpipe/internal/status"
	"github.com/NielsdaWheelz/extpipe/internal/testexec"
)

// SchemaVersion is the current run record schema.
const SchemaVersion = "1.0"

// RunRecord is the evidence record of one pipeline invocation.
// Written to <workdir>/extpipe-run-<run_id>/run.json.
type RunRecord struct {
	// SchemaVersion is always "1.0" for v1.
	SchemaVersion string `json:"schema_version"`

	RunID string `json:"run_id"`

	// Command is the CLI command that created the run ("run" or "build").
	Command string `json:"command"`

	// StartedAt and FinishedAt are RFC3339Nano UTC timestamps.
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMS int64  `json:"duration_ms"`

	Package   string `json:"package"`
	Version   string `json:"version"`
	CheckMode string `json:"check_mode"`

	Directives map[string]string `json:"directives"`

	// Artifact is nil when the build did not complete.
	Artifact *artifact.Artifact `json:"artifact"`

	// Tests is nil when the test matrix did not run.
	Tests *testexec.Result `json:"tests"`

	BaselinePath   string `json:"baseline_path"`
	BaselineExists bool   `json:"baseline_exists"`

	// Decision is nil when the run aborted before reduction.
	Decision *status.Decision `json:"decision"`

	// Error holds "CODE: message" for fatal failures. Null otherwise.
	Error *string `json:"error"`

	LogDir string `json:"log_dir"`
}

// OK reports whether the run completed with a successful decision, or, for
// build-only runs, completed without error.
func (r *RunRecord) OK() bool {
	if r.Error != nil {
		return false
	}
	if r.Decision != nil {
		return r.Decision.OK
	}
	return r.Artifact != nil
}
