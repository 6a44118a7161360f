// Package errors provides error formatting for primer CLI output.
package errors

import (
	"io"
	"sort"
	"strings"
)

// PrintOptions controls error output formatting.
type PrintOptions struct {
	// Verbose enables detailed error output with more context keys.
	Verbose bool
}

// Context key whitelist (default mode, in order)
var defaultContextKeys = []string{
	"op",
	"target",
	"revision",
	"registry",
	"config",
	"path",
	"command",
	"batches",
	"batch_idx",
	"exit_code",
	"duration",
}

// Additional context keys for verbose mode
var verboseContextKeys = []string{
	"op",
	"target",
	"url",
	"revision",
	"commit",
	"registry",
	"config",
	"field",
	"path",
	"cache_dir",
	"output_dir",
	"command",
	"batches",
	"batch_idx",
	"exit_code",
	"signal",
	"duration",
	"duration_ms",
	"attempts",
	"timed_out",
	"cancelled",
	"env_id",
	"key",
}

const (
	maxValueLen      = 256 // max chars for single-line context values
	maxExtraValueLen = 128 // max chars for extra section values
)

// Format formats an error for display without I/O.
func Format(err error, opts PrintOptions) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	pe, ok := AsPrimerError(err)
	if !ok {
		sb.WriteString(err.Error())
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString("error_code: ")
	sb.WriteString(string(pe.Code))
	sb.WriteString("\n")
	sb.WriteString(pe.Msg)
	sb.WriteString("\n")

	if pe.Cause != nil && opts.Verbose {
		sb.WriteString("cause: ")
		sb.WriteString(sanitizeValue(pe.Cause.Error(), maxValueLen))
		sb.WriteString("\n")
	}

	contextKeys := defaultContextKeys
	if opts.Verbose {
		contextKeys = verboseContextKeys
	}

	printedKeys := make(map[string]bool)
	wroteBlank := false
	for _, key := range contextKeys {
		if pe.Details == nil {
			break
		}
		val, ok := pe.Details[key]
		if !ok || val == "" || key == "hint" {
			continue
		}
		if !wroteBlank {
			sb.WriteString("\n")
			wroteBlank = true
		}
		printedKeys[key] = true
		sb.WriteString(key)
		sb.WriteString(": ")
		sb.WriteString(sanitizeValue(val, maxValueLen))
		sb.WriteString("\n")
	}

	if opts.Verbose && pe.Details != nil {
		var extraKeys []string
		for key, val := range pe.Details {
			if !printedKeys[key] && key != "hint" && val != "" {
				extraKeys = append(extraKeys, key)
			}
		}
		if len(extraKeys) > 0 {
			sort.Strings(extraKeys)
			sb.WriteString("\nextra:\n")
			for _, key := range extraKeys {
				sb.WriteString("  ")
				sb.WriteString(key)
				sb.WriteString(": ")
				sb.WriteString(sanitizeValue(pe.Details[key], maxExtraValueLen))
				sb.WriteString("\n")
			}
		}
	}

	if hint := GetHint(err); hint != "" {
		sb.WriteString("\nhint: ")
		sb.WriteString(hint)
		sb.WriteString("\n")
	}

	for _, try := range deriveTryLines(pe) {
		sb.WriteString("try: ")
		sb.WriteString(try)
		sb.WriteString("\n")
	}

	return sb.String()
}

// PrintWithOptions writes a formatted error to w with the given options.
func PrintWithOptions(w io.Writer, err error, opts PrintOptions) {
	if err == nil {
		return
	}
	_, _ = io.WriteString(w, Format(err, opts))
}

// sanitizeValue makes a value safe for single-line context output:
// trailing whitespace trimmed, CRLF normalized, newlines escaped, truncated.
func sanitizeValue(val string, maxLen int) string {
	val = strings.TrimRight(val, " \t\r\n")
	val = strings.ReplaceAll(val, "\r\n", "\n")
	val = strings.ReplaceAll(val, "\n", "\\n")
	if len(val) > maxLen {
		return val[:maxLen] + "…"
	}
	return val
}

// deriveTryLines returns actionable suggestions based on error code.
func deriveTryLines(pe *PrimerError) []string {
	if pe == nil {
		return nil
	}

	var lines []string
	switch pe.Code {
	case ECacheKeyMissing, ECacheKeyCorrupt:
		lines = append(lines, "primer prepare --make-commit-string")
	case EGitNotInstalled, EAnalyzerNotFound:
		lines = append(lines, "primer doctor")
	case EInvalidBatch:
		lines = append(lines, "primer run --batches=<N> --batchIdx=<0..N-1>")
	}
	return lines
}

// FormatHint formats a hint for output.
// If hint already starts with "hint:", returns as-is.
func FormatHint(hint string) string {
	if hint == "" {
		return ""
	}
	if strings.HasPrefix(hint, "hint:") {
		return hint
	}
	return "hint: " + hint
}

// GetHint extracts the hint from an error's details, if present.
func GetHint(err error) string {
	pe, ok := AsPrimerError(err)
	if !ok || pe.Details == nil {
		return ""
	}
	return pe.Details["hint"]
}
