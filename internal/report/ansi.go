package report

import "regexp"

// ansiEscapeRegex matches ANSI escape sequences including:
// - CSI sequences: ESC [ ... (parameters) ... (intermediate bytes) ... final byte
// - OSC sequences: ESC ] ... ST (where ST is ESC \ or BEL)
// - DCS, PM and APC strings
// - Single-character escapes and a lone trailing ESC
var ansiEscapeRegex = regexp.MustCompile(
	// CSI sequences: ESC [ (params) (intermediate) final
	`\x1b\[[0-9;:<=>?]*[ -/]*[@-~]` +
		// OSC sequences: ESC ] ... (ST = ESC \ or BEL)
		`|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?` +
		// DCS, PM, APC sequences
		`|\x1b[PX^_][^\x1b]*\x1b\\` +
		// Remaining ESC sequences (catch-all for ESC + any char)
		`|\x1b.` +
		// Lone ESC at end of string or partial CSI
		`|\x1b\[?$`,
)

// StripANSI removes terminal escape sequences, such as the colors test
// runners emit, from a log line. Input without escapes is returned unchanged.
func StripANSI(s string) string {
	if s == "" {
		return s
	}
	return ansiEscapeRegex.ReplaceAllString(s, "")
}
