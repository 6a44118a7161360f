// Package render provides output formatting for primer commands.
// This file renders comparison reports as markdown.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/compare"
)

// DefaultMaxLines bounds the diagnostic lines shown per target and the
// stderr lines shown per failure.
const DefaultMaxLines = 20

// CompareOptions tunes markdown output.
type CompareOptions struct {
	// MaxLines bounds listed lines per section entry. Zero means DefaultMaxLines.
	MaxLines int
}

// WriteCompareMarkdown writes r as a markdown comment body.
//
// Output shape:
//
//	## primer: pr vs main (env 3.12.1)
//
//	compared 42 targets
//
//	### New crashes and timeouts
//	...
func WriteCompareMarkdown(w io.Writer, r compare.Report, opts CompareOptions) error {
	limit := opts.MaxLines
	if limit <= 0 {
		limit = DefaultMaxLines
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## primer: %s vs %s (env %s)\n\n", r.PRType, r.BaseType, r.EnvID)
	fmt.Fprintf(&b, "compared %d %s\n", r.Compared, plural(r.Compared, "target", "targets"))
	if r.BaseVersion != r.PRVersion && r.BaseVersion != "" && r.PRVersion != "" {
		fmt.Fprintf(&b, "\nanalyzer: `%s` (%s) vs `%s` (%s)\n", r.PRVersion, r.PRType, r.BaseVersion, r.BaseType)
	}
	if r.Incomplete {
		b.WriteString("\n> **warning:** at least one batch was cancelled; results are incomplete.\n")
	}

	if !r.Changed() {
		b.WriteString("\nNo changes.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	if len(r.NewFailures) > 0 {
		b.WriteString("\n### New crashes and timeouts\n\n")
		for _, c := range r.NewFailures {
			writeFailure(&b, c, limit)
		}
	}

	if len(r.Fixed) > 0 {
		b.WriteString("\n### Fixed\n\n")
		for _, c := range r.Fixed {
			fmt.Fprintf(&b, "- **%s**: %s → %s\n", c.Target, c.Base, c.PR)
		}
	}

	if len(r.Messages) > 0 {
		b.WriteString("\n### Changed messages\n")
		for _, m := range r.Messages {
			fmt.Fprintf(&b, "\n<details>\n<summary>%s: +%d -%d</summary>\n\n```diff\n", m.Target, len(m.Added), len(m.Removed))
			writeDiffLines(&b, "+ ", m.Added, limit)
			writeDiffLines(&b, "- ", m.Removed, limit)
			b.WriteString("```\n\n</details>\n")
		}
	}

	if len(r.OnlyInBase) > 0 || len(r.OnlyInPR) > 0 {
		b.WriteString("\n### Corpus differences\n\n")
		if len(r.OnlyInBase) > 0 {
			fmt.Fprintf(&b, "- only in %s: %s\n", r.BaseType, strings.Join(r.OnlyInBase, ", "))
		}
		if len(r.OnlyInPR) > 0 {
			fmt.Fprintf(&b, "- only in %s: %s\n", r.PRType, strings.Join(r.OnlyInPR, ", "))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeFailure(b *strings.Builder, c compare.StatusChange, limit int) {
	fmt.Fprintf(b, "- **%s**: %s → %s", c.Target, c.Base, c.PR)
	if c.Reason != "" {
		fmt.Fprintf(b, " (%s)", c.Reason)
	}
	b.WriteString("\n")

	stderr := strings.TrimRight(c.Stderr, "\n")
	if stderr == "" {
		return
	}
	lines := strings.Split(stderr, "\n")
	b.WriteString("\n  ```\n")
	for _, l := range tail(lines, limit) {
		b.WriteString("  ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("  ```\n\n")
}

func writeDiffLines(b *strings.Builder, prefix string, lines []string, limit int) {
	for i, l := range lines {
		if i == limit {
			fmt.Fprintf(b, "%s... %d more\n", prefix, len(lines)-limit)
			return
		}
		b.WriteString(prefix)
		b.WriteString(l)
		b.WriteString("\n")
	}
}

// tail keeps the last n lines; tracebacks end with the interesting part.
func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
