// Package watchdog provides stall detection for extpipe runs.
//
// A run is considered stalled if its record has no finish time and nothing
// in the run directory has been written within the configured threshold.
// That is what a pipeline process killed mid-stage leaves behind.
package watchdog

import "time"

// DefaultStallThreshold is the default duration after which a run is considered stalled.
const DefaultStallThreshold = 2 * time.Hour

// ActivitySignals contains signals used to determine if a run is stalled.
type ActivitySignals struct {
	// Finished is true once the run record carries a finish time.
	Finished bool

	// LastActivity is the newest modification time of the events log, the
	// run record and the stage logs. Zero if none exists.
	LastActivity time.Time
}

// StallResult contains the result of a stall check.
type StallResult struct {
	// IsStalled is true if the run is considered stalled.
	IsStalled bool

	// StalledDuration is the duration since the last activity signal.
	// Only meaningful when IsStalled is true.
	StalledDuration time.Duration
}

// CheckStall determines if a run is stalled based on activity signals.
//
// A run is considered stalled if:
// - it has not finished
// - its last activity is at least threshold before now
//
// A run without any activity signal cannot be judged and is not stalled.
func CheckStall(signals ActivitySignals, threshold time.Duration, now time.Time) StallResult {
	if signals.Finished || signals.LastActivity.IsZero() {
		return StallResult{IsStalled: false}
	}

	stalledDuration := now.Sub(signals.LastActivity)
	if stalledDuration >= threshold {
		return StallResult{
			IsStalled:       true,
			StalledDuration: stalledDuration,
		}
	}

	return StallResult{IsStalled: false}
}

// CheckStallWithDefault calls CheckStall with the DefaultStallThreshold.
func CheckStallWithDefault(signals ActivitySignals, now time.Time) StallResult {
	return CheckStall(signals, DefaultStallThreshold, now)
}
