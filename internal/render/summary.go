package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/fetch"
	"github.com/NielsdaWheelz/primer/internal/store"
)

// BatchSummary describes a finished batch for human output.
type BatchSummary struct {
	Artifact store.BatchArtifact
	Paths    []string
}

// WriteBatchSummary writes a short batch result to w.
//
// Output format:
//
//	batch: 1/2 (type pr, env 3.12.1)
//	targets: 3 (clean 1, findings 1, crashed 1, timed-out 0, skipped 0)
//	artifact: .primer/output/output_3.12.1_pr_batch1.json
func WriteBatchSummary(w io.Writer, s BatchSummary) {
	a := s.Artifact
	_, _ = fmt.Fprintf(w, "batch: %d/%d (type %s, env %s)\n", a.BatchIdx, a.Batches, a.RunType, a.EnvID)

	parts := make([]string, 0, len(store.AllStatuses))
	for _, st := range store.AllStatuses {
		parts = append(parts, fmt.Sprintf("%s %d", st, a.Counts[st]))
	}
	_, _ = fmt.Fprintf(w, "targets: %d (%s)\n", len(a.Records), strings.Join(parts, ", "))
	if a.Cancelled {
		_, _ = fmt.Fprintln(w, "cancelled: true")
	}
	for _, p := range s.Paths {
		_, _ = fmt.Fprintf(w, "artifact: %s\n", p)
	}
}

// WriteFetchTable writes one row per fetch result, columns aligned.
//
//	TARGET   REVISION  COMMIT        RESULT   ATTEMPTS
//	astroid  v3.0.1    1a2b3c4d5e6f  fetched  1
//	django   4.2       -             failed   3
func WriteFetchTable(w io.Writer, rep fetch.Report) error {
	rows := make([][5]string, 0, len(rep.Results)+1)
	rows = append(rows, [5]string{"TARGET", "REVISION", "COMMIT", "RESULT", "ATTEMPTS"})
	for _, r := range rep.Results {
		commit := "-"
		if r.Commit != "" {
			commit = TruncateCommit(r.Commit)
		}
		rows = append(rows, [5]string{r.Target, r.Revision, commit, fetchResult(r), strconv.Itoa(r.Attempts)})
	}

	var widths [5]int
	for _, row := range rows {
		for i, col := range row {
			widths[i] = max(widths[i], len(col))
		}
	}

	for _, row := range rows {
		line := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %s",
			widths[0], row[0],
			widths[1], row[1],
			widths[2], row[2],
			widths[3], row[3],
			row[4],
		)
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// WriteFetchFailures writes one warning line per failed target.
func WriteFetchFailures(w io.Writer, rep fetch.Report) {
	for _, r := range rep.Failed() {
		_, _ = fmt.Fprintf(w, "warning: %s@%s not cached: %s\n", r.Target, r.Revision, r.Error)
	}
}

// WriteKeyValues writes "key: value" lines in order.
func WriteKeyValues(w io.Writer, pairs [][2]string) {
	for _, kv := range pairs {
		_, _ = fmt.Fprintf(w, "%s: %s\n", kv[0], kv[1])
	}
}

// TruncateCommit shortens a commit id for display.
func TruncateCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

func fetchResult(r fetch.Result) string {
	switch {
	case !r.OK():
		return "failed"
	case r.Cached:
		return "cached"
	default:
		return "fetched"
	}
}
