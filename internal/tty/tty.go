// Package tty provides terminal detection for choosing log output formats.
package tty

import (
	"io"
	"os"
)

// IsTTY returns true if the given file is a TTY.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	// Check if it's a character device (terminal)
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
// Buffers, pipes and regular files are not.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && IsTTY(f)
}
