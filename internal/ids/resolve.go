// Package ids generates run identifiers and resolves user input to a run by
// exact match or unique prefix.
package ids

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns "<yyyymmdd>-<hhmmss>-<8 hex>". IDs sort chronologically
// and stay unique within the same second.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format("20060102-150405") + "-" + suffix
}

// RunRef represents a reference to a discovered run.
type RunRef struct {
	// RunID is taken from the run directory name (canonical identity).
	RunID string

	// Broken indicates run.json is unreadable or invalid.
	// Resolver does not refuse broken runs; command layer decides.
	Broken bool
}

// ErrNotFound indicates no matching run_id (exact or prefix).
type ErrNotFound struct {
	Input string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("run not found: %q", e.Input)
}

// ErrAmbiguous indicates prefix matched multiple run_ids.
type ErrAmbiguous struct {
	Input      string
	Candidates []RunRef // ordered by RunID asc
}

func (e *ErrAmbiguous) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = c.RunID
	}
	return fmt.Sprintf("ambiguous run id %q matches: %s", e.Input, strings.Join(ids, ", "))
}

// ResolveRunRef resolves an input run identifier to a single run reference.
//
// Resolution rules:
//  1. Exact match wins.
//  2. Otherwise, treat input as a prefix:
//     - 0 matches: not found
//     - 1 match: resolve
//     - >1 matches: ambiguous (return candidates)
//  3. Input normalization: trim whitespace; empty after trim = not found.
//
// Broken runs are NOT refused; resolver returns them so command layer can decide.
func ResolveRunRef(input string, refs []RunRef) (RunRef, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return RunRef{}, &ErrNotFound{Input: ""}
	}

	for _, ref := range refs {
		if ref.RunID == input {
			return ref, nil
		}
	}

	var prefixMatches []RunRef
	for _, ref := range refs {
		if strings.HasPrefix(ref.RunID, input) {
			prefixMatches = append(prefixMatches, ref)
		}
	}

	switch len(prefixMatches) {
	case 0:
		return RunRef{}, &ErrNotFound{Input: input}
	case 1:
		return prefixMatches[0], nil
	default:
		sort.Slice(prefixMatches, func(i, j int) bool {
			return prefixMatches[i].RunID < prefixMatches[j].RunID
		})
		return RunRef{}, &ErrAmbiguous{Input: input, Candidates: prefixMatches}
	}
}
