// Package errors provides error formatting for extpipe CLI output.
package errors

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// PrintOptions controls error output formatting.
type PrintOptions struct {
	// Verbose enables detailed error output with more context keys and longer tails.
	Verbose bool

	// Tailer provides output tail lines for stage failures.
	// If nil, PrintWithOptions reads the stage log directly (bounded I/O).
	Tailer func(logPath string, maxLines int) ([]string, error)
}

// Context key whitelist (default mode, in order)
var defaultContextKeys = []string{
	"stage",
	"package",
	"version",
	"env",
	"command",
	"exit_code",
	"artifact",
	"log",
	"record",
}

// Additional context keys for verbose mode
var verboseContextKeys = []string{
	"stage",
	"run_id",
	"package",
	"version",
	"env",
	"source",
	"sdist",
	"command",
	"exit_code",
	"duration",
	"artifact",
	"cache",
	"helpers",
	"log",
	"record",
	"check_mode",
	"baseline",
}

// Truncation limits
const (
	defaultMaxLines = 20
	defaultMaxChars = 8 * 1024 // 8 KB
	verboseMaxLines = 100
	verboseMaxChars = 64 * 1024 // 64 KB

	maxValueLen      = 256
	maxExtraValueLen = 128
	maxOutputLineLen = 512
)

// Format formats an error for display without I/O.
func Format(err error, opts PrintOptions) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	pe, ok := AsPipelineError(err)
	if !ok {
		sb.WriteString(err.Error())
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString("error_code: ")
	sb.WriteString(string(pe.Code))
	sb.WriteString("\n")
	sb.WriteString(pe.Msg)
	sb.WriteString("\n")
	if pe.Cause != nil && opts.Verbose {
		sb.WriteString("cause: ")
		sb.WriteString(sanitizeValue(pe.Cause.Error(), maxValueLen))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")

	contextKeys := defaultContextKeys
	if opts.Verbose {
		contextKeys = verboseContextKeys
	}

	printedKeys := make(map[string]bool)
	for _, key := range contextKeys {
		val, ok := pe.Details[key]
		if !ok || val == "" {
			continue
		}
		printedKeys[key] = true
		sb.WriteString(key)
		sb.WriteString(": ")
		sb.WriteString(sanitizeValue(val, maxValueLen))
		sb.WriteString("\n")
	}

	if opts.Verbose {
		var extraKeys []string
		for key, val := range pe.Details {
			if printedKeys[key] || key == "hint" || val == "" {
				continue
			}
			extraKeys = append(extraKeys, key)
		}
		if len(extraKeys) > 0 {
			sort.Strings(extraKeys)
			sb.WriteString("\nextra:\n")
			for _, key := range extraKeys {
				sb.WriteString("  ")
				sb.WriteString(key)
				sb.WriteString(": ")
				sb.WriteString(sanitizeValue(pe.Details[key], maxExtraValueLen))
				sb.WriteString("\n")
			}
		}
	}

	if hint := pe.Details["hint"]; hint != "" {
		sb.WriteString("\nhint: ")
		sb.WriteString(hint)
		sb.WriteString("\n")
	}

	for _, try := range deriveTryLines(pe) {
		sb.WriteString("try: ")
		sb.WriteString(try)
		sb.WriteString("\n")
	}

	return sb.String()
}

// PrintWithOptions writes a formatted error to w with the given options.
// For stage failures carrying a log path it appends a bounded tail of that log.
func PrintWithOptions(w io.Writer, err error, opts PrintOptions) {
	if err == nil {
		return
	}

	output := Format(err, opts)

	pe, ok := AsPipelineError(err)
	if ok && isStageFailure(pe) {
		if logPath := pe.Details["log"]; logPath != "" {
			maxLines := defaultMaxLines
			maxChars := defaultMaxChars
			if opts.Verbose {
				maxLines = verboseMaxLines
				maxChars = verboseMaxChars
			}

			var lines []string
			var tailErr error
			if opts.Tailer != nil {
				lines, tailErr = opts.Tailer(logPath, maxLines)
			} else {
				lines, tailErr = readTail(logPath, maxLines, maxChars)
			}

			if tailErr == nil && len(lines) > 0 {
				output = insertOutputBlock(output, lines, maxLines)
			}
		}
	}

	_, _ = io.WriteString(w, output)
}

// sanitizeValue flattens a value onto one line and truncates it to maxLen.
func sanitizeValue(val string, maxLen int) string {
	val = strings.TrimRight(val, " \t\r\n")
	val = strings.ReplaceAll(val, "\r\n", "\n")
	val = strings.ReplaceAll(val, "\n", "\\n")
	if len(val) > maxLen {
		return val[:maxLen] + "…"
	}
	return val
}

// isStageFailure reports whether the error came from an external build step
// whose log is worth tailing.
func isStageFailure(pe *PipelineError) bool {
	switch pe.Code {
	case ESdistFailed, EBdistFailed, ECompileFailed:
		return true
	}
	return false
}

// readTail reads the last maxLines lines from a file, up to maxChars total.
func readTail(path string, maxLines, maxChars int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := stat.Size()
	if size == 0 {
		return nil, nil
	}

	readSize := int64(maxChars)
	if readSize > size {
		readSize = size
	}

	if _, err := f.Seek(size-readSize, io.SeekStart); err != nil {
		return nil, err
	}

	var allLines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > maxOutputLineLen {
			line = line[:maxOutputLineLen] + "…"
		}
		allLines = append(allLines, strings.TrimRight(line, " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(allLines) > maxLines {
		return allLines[len(allLines)-maxLines:], nil
	}
	return allLines, nil
}

// insertOutputBlock inserts the output tail block before the hint line.
func insertOutputBlock(output string, lines []string, maxLines int) string {
	var block strings.Builder
	if len(lines) >= maxLines {
		block.WriteString(fmt.Sprintf("\noutput (last %d lines):\n", len(lines)))
	} else {
		block.WriteString(fmt.Sprintf("\noutput (%d lines):\n", len(lines)))
	}
	for _, line := range lines {
		block.WriteString("  ")
		block.WriteString(line)
		block.WriteString("\n")
	}

	if idx := strings.Index(output, "\nhint: "); idx >= 0 {
		return output[:idx] + block.String() + output[idx:]
	}
	if idx := strings.Index(output, "\ntry: "); idx >= 0 {
		return output[:idx] + block.String() + output[idx:]
	}
	return output + block.String()
}

// deriveTryLines returns actionable suggestions based on error code.
func deriveTryLines(pe *PipelineError) []string {
	if pe == nil {
		return nil
	}

	var lines []string
	switch pe.Code {
	case EHelpersMissing, EToolNotInstalled:
		lines = append(lines, "extpipe doctor")
	case ETestsFailed:
		if logDir := pe.Details["log_dir"]; logDir != "" {
			lines = append(lines, fmt.Sprintf("extpipe report %s/test-*.log", logDir))
		}
	case EStoreFailed:
		if cache := pe.Details["cache"]; cache != "" {
			lines = append(lines, fmt.Sprintf("ls -la %s", cache))
		}
	}
	return lines
}

// GetHint extracts the hint from an error's details, if present.
func GetHint(err error) string {
	pe, ok := AsPipelineError(err)
	if !ok {
		return ""
	}
	return pe.Details["hint"]
}
