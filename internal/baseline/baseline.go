// Package baseline locates the known-failures record. Only its presence
// matters to the pipeline; the test runner is the one that reads it.
package baseline

import (
	"github.com/NielsdaWheelz/extpipe/internal/fs"
)

// DefaultName is the conventional baseline file name inside the source tree.
const DefaultName = "known-test-failures.json"

// Manifest identifies a baseline record on disk.
type Manifest struct {
	Path string
}

// Exists reports whether the manifest is present and readable.
// An empty path never exists.
func (m Manifest) Exists() bool {
	if m.Path == "" {
		return false
	}
	return fs.Exists(m.Path)
}
