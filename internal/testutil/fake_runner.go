// Package testutil holds test doubles shared across packages.
package testutil

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/NielsdaWheelz/extpipe/internal/exec"
)

// FakeCall records one Run invocation.
type FakeCall struct {
	Name string
	Args []string
	Opts exec.RunOpts
}

// Line returns the call as a single space-joined command line.
func (c FakeCall) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// EnvValue returns the last value of key in the call's environment.
func (c FakeCall) EnvValue(key string) (string, bool) {
	val, found := "", false
	for _, kv := range c.Opts.Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			val, found = v, true
		}
	}
	return val, found
}

// FakeResponse is what a faked command returns.
type FakeResponse struct {
	Result exec.CmdResult
	Err    error
}

// FakeRunner is a concurrency-safe exec.CommandRunner double. It records
// calls and answers them with Handler. Result output is written to the
// RunOpts writers and, like the real runner, dropped from the returned
// result for streamed output unless Capture is set.
type FakeRunner struct {
	// Handler decides the response for each call. It may create files to
	// simulate tool outputs. Nil means every command succeeds silently.
	Handler func(call FakeCall) FakeResponse

	// Missing lists programs LookPath reports as not found.
	Missing map[string]bool

	mu    sync.Mutex
	calls []FakeCall
}

// Run records the call and returns Handler's response.
func (f *FakeRunner) Run(ctx context.Context, name string, args []string, opts exec.RunOpts) (exec.CmdResult, error) {
	call := FakeCall{Name: name, Args: append([]string(nil), args...), Opts: opts}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	var resp FakeResponse
	if f.Handler != nil {
		resp = f.Handler(call)
	}
	if resp.Err != nil {
		return resp.Result, resp.Err
	}
	res := resp.Result
	if opts.Stdout != nil {
		writeTo(opts.Stdout, res.Stdout)
		if !opts.Capture {
			res.Stdout = ""
		}
	}
	if opts.Stderr != nil {
		writeTo(opts.Stderr, res.Stderr)
		if !opts.Capture {
			res.Stderr = ""
		}
	}
	return res, nil
}

// LookPath resolves everything under /usr/bin except Missing programs.
func (f *FakeRunner) LookPath(file string) (string, error) {
	if f.Missing[file] {
		return "", &notFoundError{file: file}
	}
	return "/usr/bin/" + file, nil
}

// Calls returns a copy of the recorded calls in invocation order.
func (f *FakeRunner) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// CallsTo returns the recorded calls whose program is name.
func (f *FakeRunner) CallsTo(name string) []FakeCall {
	var out []FakeCall
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func writeTo(w io.Writer, s string) {
	if w != nil && s != "" {
		_, _ = io.WriteString(w, s)
	}
}

type notFoundError struct{ file string }

func (e *notFoundError) Error() string {
	return "exec: \"" + e.file + "\": executable file not found in $PATH"
}
