// Package records merges, counts and filters tuning record logs. A record
// log is line-oriented text with one measured trial per line.
package records

import (
	"strings"
)

// FailureSentinel is the benchmark value the tuning tool records for a
// configuration that could not be measured.
const FailureSentinel = "1000000000.0"

// Merge concatenates logs in the given order. Empty logs contribute
// nothing; every non-empty log ends with a newline in the result.
func Merge(logs ...string) string {
	var b strings.Builder
	for _, l := range logs {
		if strings.TrimSpace(l) == "" {
			continue
		}
		b.WriteString(l)
		if !strings.HasSuffix(l, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Counts summarizes a log.
type Counts struct {
	Total  int
	Failed int
}

// Tuned is the number of successfully measured trials.
func (c Counts) Tuned() int { return c.Total - c.Failed }

// Count returns the number of non-blank lines and of lines carrying the
// failure sentinel.
func Count(log string) Counts {
	var c Counts
	for _, line := range strings.Split(log, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.Total++
		if strings.Contains(line, FailureSentinel) {
			c.Failed++
		}
	}
	return c
}

// Lines returns the non-blank lines of log.
func Lines(log string) []string {
	var out []string
	for _, line := range strings.Split(log, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// EarlyStopped reports whether a task's search ended before exhausting
// min(trials, spaceSize). Only meaningful when early stopping was armed
// below the trial budget.
func EarlyStopped(c Counts, trials, earlyStopping, spaceSize int) bool {
	if earlyStopping >= trials {
		return false
	}
	return c.Total < min(trials, spaceSize)
}
