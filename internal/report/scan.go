// Package report scans test-matrix logs for failure marker lines so a human
// can triage them. It never affects the pipeline's decision.
package report

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Defaults for the doctest-style logs produced by the test runner.
// A failing file is reported as e.g.
//
//	sage -t --long src/pkg/foo.py  # 2 doctests failed
//
// and the runner appends the suppression marker when the baseline already
// lists that failure.
const (
	DefaultFailurePattern   = `^\S+ -t .*#.*\bfailed\b`
	DefaultSuppressedMarker = "[failed in baseline]"
)

// maxLineBytes bounds a single log line; a longer line ends the scan with bufio.ErrTooLong.
const maxLineBytes = 1024 * 1024

// LogSource is something that can be read as a log, any number of times.
type LogSource interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource is a LogSource backed by a file on disk.
type FileSource string

// Name returns the file path.
func (f FileSource) Name() string { return string(f) }

// Open opens the file for reading.
func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// StringSource is an in-memory LogSource.
type StringSource struct {
	Label   string
	Content string
}

// Name returns the label.
func (s StringSource) Name() string { return s.Label }

// Open returns a reader over the content.
func (s StringSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.Content)), nil
}

// Record is one failure line found in a log.
type Record struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Text   string `json:"text"`
}

// Matcher decides which lines are failures and which are suppressed.
type Matcher struct {
	pattern *regexp.Regexp
	marker  string
}

// NewMatcher compiles pattern. Empty arguments fall back to the defaults;
// there is no way to disable suppression of baseline-marked lines.
func NewMatcher(pattern, marker string) (Matcher, error) {
	if pattern == "" {
		pattern = DefaultFailurePattern
	}
	if marker == "" {
		marker = DefaultSuppressedMarker
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Matcher{}, fmt.Errorf("compile failure pattern: %w", err)
	}
	return Matcher{pattern: re, marker: marker}, nil
}

// DefaultMatcher returns the matcher for the default pattern and marker.
func DefaultMatcher() Matcher {
	m, err := NewMatcher("", "")
	if err != nil {
		panic(err) // constant pattern
	}
	return m
}

// Match reports whether line is an unsuppressed failure line.
func (m Matcher) Match(line string) bool {
	if m.pattern == nil {
		return false
	}
	return m.pattern.MatchString(line) && !strings.Contains(line, m.marker)
}

// Failures returns the failure records in src. The sequence is lazy (one
// line read per step), finite, and restartable: every range reopens src.
// An open or read error is yielded once as the final element.
func Failures(src LogSource, m Matcher) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rc, err := src.Open()
		if err != nil {
			yield(Record{Source: src.Name()}, fmt.Errorf("open %s: %w", src.Name(), err))
			return
		}
		defer func() { _ = rc.Close() }()

		sc := bufio.NewScanner(rc)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			text := StripANSI(strings.TrimRight(sc.Text(), "\r"))
			if !m.Match(text) {
				continue
			}
			if !yield(Record{Source: src.Name(), Line: lineNo, Text: text}, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(Record{Source: src.Name(), Line: lineNo}, fmt.Errorf("read %s: %w", src.Name(), err))
		}
	}
}

// Collect drains Failures into a slice, stopping at the first error.
func Collect(src LogSource, m Matcher) ([]Record, error) {
	var out []Record
	for rec, err := range Failures(src, m) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GlobSources returns a FileSource for each path matching pattern, sorted.
func GlobSources(pattern string) ([]LogSource, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sources := make([]LogSource, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, FileSource(p))
	}
	return sources, nil
}
