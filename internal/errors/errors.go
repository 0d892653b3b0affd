// Package errors defines the stable error code system for extpipe.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract; scripts match on them.
const (
	EUsage          Code = "E_USAGE"
	EInternal       Code = "E_INTERNAL"
	EInvalidConfig  Code = "E_INVALID_CONFIG"
	ENotFound       Code = "E_NOT_FOUND"
	ERunIDAmbiguous Code = "E_RUN_ID_AMBIGUOUS" // id prefix matches >1 run
	EPersistFailed  Code = "E_PERSIST_FAILED"

	// Fatal tier: the pipeline cannot proceed
	EHelpersMissing   Code = "E_HELPERS_MISSING"    // shared helpers file missing or unreadable
	ESdistFailed      Code = "E_SDIST_FAILED"       // source distribution build failed
	EBdistFailed      Code = "E_BDIST_FAILED"       // binary distribution build failed
	ECompileFailed    Code = "E_COMPILE_FAILED"     // compiler reported errors during the binary build
	EStoreFailed      Code = "E_STORE_FAILED"       // artifact could not be stored in the cache
	ETestExecFailed   Code = "E_TEST_EXEC_FAILED"   // test matrix could not be set up
	EToolNotInstalled Code = "E_TOOL_NOT_INSTALLED" // a configured command is not on PATH

	// Policy tier: the pipeline completed and the status reducer said no
	ETestsFailed Code = "E_TESTS_FAILED"
)

// PipelineError is the standard error type for extpipe errors.
type PipelineError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ExitCodeError wraps an error with an explicit process exit code.
type ExitCodeError struct {
	Err  error
	Code int
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func (e *ExitCodeError) ExitCode() int {
	return e.Code
}

// WithExitCode wraps err with a specific process exit code.
func WithExitCode(err error, code int) error {
	return &ExitCodeError{Err: err, Code: code}
}

// New creates a new PipelineError with the given code and message.
func New(code Code, msg string) error {
	return &PipelineError{Code: code, Msg: msg}
}

// NewWithDetails creates a new PipelineError with code, message, and details.
// Details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &PipelineError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new PipelineError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &PipelineError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new PipelineError wrapping an underlying error with details.
// Details map is copied (nil if empty).
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &PipelineError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not a PipelineError.
func GetCode(err error) Code {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// AsPipelineError returns (*PipelineError, true) if err is or wraps a PipelineError.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the process exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	if pe, ok := AsPipelineError(err); ok {
		_, _ = fmt.Fprintf(w, "error_code: %s\n", pe.Code)
		_, _ = fmt.Fprintln(w, pe.Msg)
		return
	}
	_, _ = fmt.Fprintln(w, err.Error())
}
