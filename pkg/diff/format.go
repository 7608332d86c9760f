package diff

import (
	"fmt"
	"strings"
)

// FormatChanges produces a summary of entry changes.
//
// Output format:
//
//	~ $.origin.x    1 -> 5
//	+ $.tags[2]     "new"
//	- $.note        "old"
func FormatChanges(r *Result) string {
	if r.Empty() {
		return ""
	}
	width := 0
	for _, c := range r.Changes {
		width = max(width, len(c.Path))
	}

	var b strings.Builder
	for _, c := range r.Changes {
		switch c.Type {
		case Added:
			fmt.Fprintf(&b, "+ %-*s  %s\n", width, c.Path, c.After.Value)
		case Removed:
			fmt.Fprintf(&b, "- %-*s  %s\n", width, c.Path, c.Before.Value)
		case Modified:
			fmt.Fprintf(&b, "~ %-*s  %s -> %s\n", width, c.Path, c.Before.Value, c.After.Value)
		}
	}
	return b.String()
}

// FormatLineDiff produces a unified-diff-style listing of two renderings,
// with every line shown.
//
// Output format:
//
//	--- a/before
//	+++ b/after
//	 unchanged line
//	-old line
//	+new line
func FormatLineDiff(beforeName, afterName string, before, after []byte) string {
	lines := LineDiff(before, after)
	changed := false
	for _, l := range lines {
		if l.Type != Equal {
			changed = true
			break
		}
	}
	if !changed {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", beforeName)
	fmt.Fprintf(&b, "+++ b/%s\n", afterName)
	for _, l := range lines {
		switch l.Type {
		case Delete:
			fmt.Fprintf(&b, "-%s\n", l.Content)
		case Insert:
			fmt.Fprintf(&b, "+%s\n", l.Content)
		case Equal:
			fmt.Fprintf(&b, " %s\n", l.Content)
		}
	}
	return b.String()
}
