// Package render provides output formatting for extpipe commands.
package render

import (
	"fmt"
	"io"
	"time"

	"github.com/NielsdaWheelz/extpipe/internal/store"
	"github.com/NielsdaWheelz/extpipe/internal/watchdog"
)

// Display values for runs without a usable record.
const (
	ValueBroken  = "<broken>"
	ValueUnknown = "-"
)

// Status column values.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusRunning = "incomplete"
	StatusStalled = "stalled"
)

// RunSummary is the machine-readable form of one ls row.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Command   string `json:"command,omitempty"`
	Package   string `json:"package,omitempty"`
	Version   string `json:"version,omitempty"`
	CheckMode string `json:"check_mode,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Broken    bool   `json:"broken"`
	RunDir    string `json:"run_dir"`
}

// Summarize converts a scanned run into a RunSummary. An unfinished run
// that has gone quiet for watchdog.DefaultStallThreshold is reported as
// stalled.
func Summarize(e store.RunEntry, now time.Time) RunSummary {
	s := RunSummary{RunID: e.RunID, RunDir: e.RunDir, Broken: e.Broken}
	if e.Broken || e.Record == nil {
		s.Status = ValueBroken
		return s
	}
	rec := e.Record
	s.Command = rec.Command
	s.Package = rec.Package
	s.Version = rec.Version
	s.CheckMode = rec.CheckMode
	s.StartedAt = rec.StartedAt
	s.Status = RunStatus(rec)
	s.Message = RunMessage(rec)
	if s.Status == StatusRunning {
		stall := watchdog.CheckStallWithDefault(watchdog.ActivitySignals{LastActivity: e.LastActivity}, now)
		if stall.IsStalled {
			s.Status = StatusStalled
			s.Message = fmt.Sprintf("no activity for %s", stall.StalledDuration.Round(time.Minute))
		}
	}
	return s
}

// RunStatus derives the status column from a record.
func RunStatus(rec *store.RunRecord) string {
	switch {
	case rec.FinishedAt == "":
		return StatusRunning
	case rec.OK():
		return StatusOK
	default:
		return StatusFailed
	}
}

// RunMessage returns the decision message, the fatal error, or a build note.
func RunMessage(rec *store.RunRecord) string {
	switch {
	case rec.Error != nil:
		return *rec.Error
	case rec.Decision != nil:
		return rec.Decision.Message
	case rec.Artifact != nil:
		return "built " + rec.Artifact.Wheel
	}
	return ""
}

// RunSummaryHumanRow holds the fields for a single human-output row.
type RunSummaryHumanRow struct {
	RunID   string
	Package string
	Command string
	Created string
	Status  string
	Message string
}

// FormatHumanRow converts a RunSummary for display.
func FormatHumanRow(s RunSummary, now time.Time) RunSummaryHumanRow {
	row := RunSummaryHumanRow{
		RunID:   s.RunID,
		Package: ValueUnknown,
		Command: ValueUnknown,
		Created: ValueUnknown,
		Status:  s.Status,
		Message: TruncateForDisplay(s.Message, MessageMaxLen),
	}
	if s.Package != "" {
		row.Package = s.Package + " " + s.Version
	}
	if s.Command != "" {
		row.Command = s.Command
		if s.CheckMode != "" && s.Command == "run" {
			row.Command += "/" + s.CheckMode
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s.StartedAt); err == nil {
		row.Created = formatRelativeTime(t, now)
	}
	return row
}

// MessageMaxLen is the maximum display length of the message column.
const MessageMaxLen = 60

// WriteLSHuman writes the ls output in human-readable format.
// Fields are separated by whitespace columns for easy scanning.
func WriteLSHuman(w io.Writer, rows []RunSummaryHumanRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no runs found")
		return err
	}

	header := RunSummaryHumanRow{"RUN_ID", "PACKAGE", "CMD", "CREATED", "STATUS", "MESSAGE"}
	widths := columnWidths(append([]RunSummaryHumanRow{header}, rows...))
	if _, err := fmt.Fprintln(w, formatRow(header, widths)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, formatRow(row, widths)); err != nil {
			return err
		}
	}
	return nil
}

type colWidths struct {
	runID, pkg, cmd, created, status int
}

func columnWidths(rows []RunSummaryHumanRow) colWidths {
	var w colWidths
	for _, row := range rows {
		w.runID = max(w.runID, len(row.RunID))
		w.pkg = max(w.pkg, len(row.Package))
		w.cmd = max(w.cmd, len(row.Command))
		w.created = max(w.created, len(row.Created))
		w.status = max(w.status, len(row.Status))
	}
	return w
}

func formatRow(r RunSummaryHumanRow, w colWidths) string {
	return fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %s",
		w.runID, r.RunID,
		w.pkg, r.Package,
		w.cmd, r.Command,
		w.created, r.Created,
		w.status, r.Status,
		r.Message,
	)
}

// formatRelativeTime formats a time as a human-friendly relative string.
func formatRelativeTime(t time.Time, now time.Time) string {
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// TruncateForDisplay is a helper to safely truncate any string for display.
func TruncateForDisplay(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
