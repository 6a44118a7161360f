// Package aggregate turns a batch's result records into its artifacts:
// the full JSON batch artifact for later comparison and a size-bounded
// warnings text holding only crashed and timed-out diagnostics.
package aggregate

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NielsdaWheelz/primer/internal/errors"
	primerfs "github.com/NielsdaWheelz/primer/internal/fs"
	"github.com/NielsdaWheelz/primer/internal/store"
)

// DefaultWarningsBytes bounds the warnings text when no budget is given.
const DefaultWarningsBytes = 16 << 10

// Meta identifies the batch an artifact belongs to.
type Meta struct {
	RunID           string
	RunType         string
	EnvID           string
	Batches         int
	BatchIdx        int
	CacheKey        string
	AnalyzerVersion string
	StartedAt       time.Time
	FinishedAt      time.Time
	Cancelled       bool
}

// Aggregate builds the artifact for records. Records are ordered by target
// name and counted per status; every known status appears in Counts.
func Aggregate(records []store.ResultRecord, meta Meta) store.BatchArtifact {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b store.ResultRecord) int {
		return strings.Compare(a.Target, b.Target)
	})
	if sorted == nil {
		sorted = []store.ResultRecord{}
	}

	counts := make(map[store.Status]int, len(store.AllStatuses))
	for _, s := range store.AllStatuses {
		counts[s] = 0
	}
	for _, r := range sorted {
		counts[r.Status]++
	}

	return store.BatchArtifact{
		SchemaVersion:   store.SchemaVersion,
		RunID:           meta.RunID,
		RunType:         meta.RunType,
		EnvID:           meta.EnvID,
		Batches:         meta.Batches,
		BatchIdx:        meta.BatchIdx,
		CacheKey:        meta.CacheKey,
		AnalyzerVersion: meta.AnalyzerVersion,
		StartedAt:       meta.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:      meta.FinishedAt.UTC().Format(time.RFC3339),
		Cancelled:       meta.Cancelled,
		Counts:          counts,
		Records:         sorted,
	}
}

// Warnings renders the crashed and timed-out records of a as plain text,
// bounded to maxBytes. A cut never splits a UTF-8 sequence and ends with a
// note naming how much was dropped. Returns "" when nothing failed.
func Warnings(a store.BatchArtifact, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultWarningsBytes
	}

	var b strings.Builder
	for _, r := range a.Records {
		if !r.Status.IsFailure() {
			continue
		}
		fmt.Fprintf(&b, "== %s@%s: %s", r.Target, r.Revision, r.Status)
		if r.Reason != "" {
			fmt.Fprintf(&b, " (%s)", r.Reason)
		}
		b.WriteString("\n")
		if diag := strings.TrimRight(r.Stderr, "\n"); diag != "" {
			b.WriteString(diag)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return truncate(b.String(), maxBytes)
}

// truncate cuts s to at most max bytes including the truncation note.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	note := fmt.Sprintf("\n[truncated %d bytes]\n", len(s))
	keep := max - len(note)
	if keep <= 0 {
		return note[:min(len(note), max)]
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	note = fmt.Sprintf("\n[truncated %d bytes]\n", len(s)-keep)
	return s[:keep] + note[:min(len(note), max-keep)]
}

// Paths are the files written for one batch.
type Paths struct {
	Artifact string
	Warnings string
}

// Write persists a and its warnings text atomically under st's output
// directory. The warnings file is always written, empty when nothing
// failed, so CI can surface it unconditionally.
// Returns E_ARTIFACT_WRITE_FAILED.
func Write(st *store.Store, a store.BatchArtifact, maxWarningBytes int) (Paths, error) {
	p := Paths{
		Artifact: st.ArtifactPath(a.EnvID, a.RunType, a.BatchIdx),
		Warnings: st.WarningsPath(a.EnvID, a.RunType, a.BatchIdx),
	}
	details := map[string]string{"path": p.Artifact}

	if err := primerfs.WriteJSONAtomic(p.Artifact, a, 0o644); err != nil {
		return p, errors.WrapWithDetails(errors.EArtifactWriteFailed, "failed to write batch artifact", err, details)
	}
	details["path"] = p.Warnings
	if err := primerfs.WriteFileAtomic(p.Warnings, []byte(Warnings(a, maxWarningBytes)), 0o644); err != nil {
		return p, errors.WrapWithDetails(errors.EArtifactWriteFailed, "failed to write warnings", err, details)
	}
	return p, nil
}

// ReadArtifact loads and checks a batch artifact.
// Returns E_ARTIFACT_NOT_FOUND or E_ARTIFACT_INVALID.
func ReadArtifact(path string) (store.BatchArtifact, error) {
	details := map[string]string{"path": path}

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return store.BatchArtifact{}, errors.NewWithDetails(errors.EArtifactNotFound, "batch artifact not found", details)
		}
		return store.BatchArtifact{}, errors.WrapWithDetails(errors.EArtifactInvalid, "failed to read batch artifact", err, details)
	}

	var a store.BatchArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return store.BatchArtifact{}, errors.WrapWithDetails(errors.EArtifactInvalid, "batch artifact is not valid JSON", err, details)
	}
	if err := check(a); err != nil {
		return store.BatchArtifact{}, errors.WrapWithDetails(errors.EArtifactInvalid, "invalid batch artifact: "+err.Error(), err, details)
	}
	return a, nil
}

func check(a store.BatchArtifact) error {
	if a.SchemaVersion != store.SchemaVersion {
		return fmt.Errorf("unsupported schema_version %q", a.SchemaVersion)
	}
	if a.Batches < 1 || a.BatchIdx < 0 || a.BatchIdx >= a.Batches {
		return fmt.Errorf("batch_idx %d out of range for %d batches", a.BatchIdx, a.Batches)
	}
	seen := make(map[string]bool, len(a.Records))
	for _, r := range a.Records {
		if r.Target == "" {
			return stderrors.New("record without target")
		}
		if seen[r.Target] {
			return fmt.Errorf("duplicate record for %q", r.Target)
		}
		seen[r.Target] = true
		if !r.Status.Valid() {
			return fmt.Errorf("record %q has unknown status %q", r.Target, r.Status)
		}
	}
	return nil
}
