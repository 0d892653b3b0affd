// Package exec wraps process execution behind an interface so every external
// tool the pipeline drives (packager, compiler, test runner) can be faked in tests.
package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	osexec "os/exec"
)

// ExitCodeNotStarted is reported when the process could not be started at all.
const ExitCodeNotStarted = 127

// RunOpts controls a single command invocation.
type RunOpts struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the full environment. Nil inherits the parent environment.
	Env []string

	// Stdout and Stderr, when set, receive the stream. A stream with a
	// writer is copied into CmdResult only when Capture is set; a stream
	// without one is always captured.
	Stdout io.Writer
	Stderr io.Writer

	// Capture keeps a copy of streamed output in CmdResult.
	Capture bool

	// Stdin is connected to the process. Nil means /dev/null.
	Stdin io.Reader
}

// CmdResult holds the outcome of a command that ran.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs external commands.
//
// Run returns a nil error whenever the process started, including non-zero
// exits; the exit status is in CmdResult.ExitCode. A non-nil error means the
// process never ran (binary missing, bad working directory).
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error)
	LookPath(file string) (string, error)
}

// RealRunner executes commands with os/exec.
type RealRunner struct{}

// NewRealRunner returns a CommandRunner backed by os/exec.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// Run executes name with args and waits for it to finish.
func (r *RealRunner) Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeTo(&stdout, opts.Stdout, opts.Capture)
	cmd.Stderr = teeTo(&stderr, opts.Stderr, opts.Capture)

	err := cmd.Run()
	result := CmdResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return result, nil
	}

	var exitErr *osexec.ExitError
	if stderrors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			// killed by signal
			result.ExitCode = 1
		}
		return result, nil
	}

	result.ExitCode = ExitCodeNotStarted
	return result, err
}

// LookPath searches PATH for file.
func (r *RealRunner) LookPath(file string) (string, error) {
	return osexec.LookPath(file)
}

func teeTo(capture *bytes.Buffer, w io.Writer, keep bool) io.Writer {
	switch {
	case w == nil:
		return capture
	case keep:
		return io.MultiWriter(capture, w)
	default:
		return w
	}
}
