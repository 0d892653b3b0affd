package report

import (
	"fmt"
	"io"
)

// Summary counts what Print emitted.
type Summary struct {
	Sources  int
	Failures int
	Errors   int
}

// Print writes, for each source, a "== <name>" header followed by its
// failure lines. Sources without failures print only the header. A read
// error is reported inline and scanning moves on to the next source.
func Print(w io.Writer, sources []LogSource, m Matcher) Summary {
	var sum Summary
	for _, src := range sources {
		sum.Sources++
		_, _ = fmt.Fprintf(w, "== %s\n", src.Name())
		for rec, err := range Failures(src, m) {
			if err != nil {
				sum.Errors++
				_, _ = fmt.Fprintf(w, "  error: %v\n", err)
				break
			}
			sum.Failures++
			_, _ = fmt.Fprintf(w, "  %d: %s\n", rec.Line, rec.Text)
		}
	}
	return sum
}
