// Package compare diffs the batch artifacts of two run types (typically the
// main branch and a pull request) for one environment.
package compare

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/aggregate"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/store"
)

// Side is the merged view of every batch artifact for one run type.
type Side struct {
	RunType         string
	AnalyzerVersion string
	Batches         int
	Artifacts       []string // paths, sorted
	Cancelled       bool     // any batch was cancelled
	Records         map[string]store.ResultRecord
}

// Load merges the artifacts in outputDir for (envID, runType).
// Returns E_ARTIFACT_NOT_FOUND when there are none and E_ARTIFACT_INVALID
// when one is unreadable or two batches both report a target.
func Load(outputDir, envID, runType string) (Side, error) {
	env := store.SanitizeEnv(envID)
	details := map[string]string{"output_dir": outputDir, "env_id": env, "type": runType}

	entries, err := os.ReadDir(outputDir)
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return Side{}, errors.WrapWithDetails(errors.EArtifactInvalid, "failed to list output directory", err, details)
	}

	side := Side{RunType: runType, Records: map[string]store.ResultRecord{}}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fileEnv, fileType, _, ok := store.ParseArtifactName(e.Name())
		if !ok || fileEnv != env || fileType != runType {
			continue
		}

		path := filepath.Join(outputDir, e.Name())
		a, err := aggregate.ReadArtifact(path)
		if err != nil {
			return Side{}, err
		}
		side.Artifacts = append(side.Artifacts, path)
		side.AnalyzerVersion = a.AnalyzerVersion
		side.Batches = a.Batches
		side.Cancelled = side.Cancelled || a.Cancelled

		for _, r := range a.Records {
			if _, dup := side.Records[r.Target]; dup {
				return Side{}, errors.NewWithDetails(errors.EArtifactInvalid,
					"target "+r.Target+" appears in more than one batch",
					map[string]string{"path": path, "target": r.Target})
			}
			side.Records[r.Target] = r
		}
	}

	if len(side.Artifacts) == 0 {
		return Side{}, errors.NewWithDetails(errors.EArtifactNotFound, "no batch artifacts found", details)
	}
	slices.Sort(side.Artifacts)
	return side, nil
}

// StatusChange is a target whose outcome class moved between sides.
type StatusChange struct {
	Target string
	Base   store.Status
	PR     store.Status
	Reason string // PR-side reason
	Stderr string // PR-side stderr
}

// MessageDiff lists diagnostic lines present on only one side.
type MessageDiff struct {
	Target  string
	Added   []string
	Removed []string
}

// Report is the outcome of comparing two sides.
type Report struct {
	EnvID    string
	BaseType string
	PRType   string

	BaseVersion string
	PRVersion   string

	Compared int

	// NewFailures crashed or timed out only on the PR side.
	NewFailures []StatusChange

	// Fixed failed on the base side only.
	Fixed []StatusChange

	// StillFailing failed on both sides.
	StillFailing []StatusChange

	Messages []MessageDiff

	OnlyInBase []string
	OnlyInPR   []string

	// Incomplete is set when either side holds a cancelled batch.
	Incomplete bool
}

// Changed reports whether r holds anything worth surfacing.
func (r Report) Changed() bool {
	return len(r.NewFailures) > 0 || len(r.Fixed) > 0 || len(r.Messages) > 0 ||
		len(r.OnlyInBase) > 0 || len(r.OnlyInPR) > 0
}

// Compare pairs base and pr records by target. Diagnostic lines are only
// compared when both sides completed analysis (clean or findings).
func Compare(envID string, base, pr Side) Report {
	r := Report{
		EnvID:       store.SanitizeEnv(envID),
		BaseType:    base.RunType,
		PRType:      pr.RunType,
		BaseVersion: base.AnalyzerVersion,
		PRVersion:   pr.AnalyzerVersion,
		Incomplete:  base.Cancelled || pr.Cancelled,
	}

	for _, name := range sortedKeys(base.Records) {
		b := base.Records[name]
		p, ok := pr.Records[name]
		if !ok {
			r.OnlyInBase = append(r.OnlyInBase, name)
			continue
		}
		r.Compared++

		change := StatusChange{Target: name, Base: b.Status, PR: p.Status, Reason: p.Reason, Stderr: p.Stderr}
		switch {
		case p.Status.IsFailure() && b.Status.IsFailure():
			r.StillFailing = append(r.StillFailing, change)
		case p.Status.IsFailure() && b.Status != store.StatusSkipped:
			r.NewFailures = append(r.NewFailures, change)
		case b.Status.IsFailure() && p.Status != store.StatusSkipped:
			r.Fixed = append(r.Fixed, change)
		}

		if completed(b.Status) && completed(p.Status) {
			added, removed := diffLines(messageLines(b.Stdout), messageLines(p.Stdout))
			if len(added) > 0 || len(removed) > 0 {
				r.Messages = append(r.Messages, MessageDiff{Target: name, Added: added, Removed: removed})
			}
		}
	}

	for _, name := range sortedKeys(pr.Records) {
		if _, ok := base.Records[name]; !ok {
			r.OnlyInPR = append(r.OnlyInPR, name)
		}
	}
	return r
}

func completed(s store.Status) bool {
	return s == store.StatusClean || s == store.StatusFindings
}

// messageLines returns the diagnostic lines of analyzer stdout. Module
// separator lines ("************* Module x") carry no diagnostic.
func messageLines(stdout string) []string {
	var out []string
	for _, l := range strings.Split(stdout, "\n") {
		l = strings.TrimRight(l, "\r ")
		if l == "" || strings.HasPrefix(l, "*************") {
			continue
		}
		out = append(out, l)
	}
	return out
}

// diffLines compares a and b as multisets and returns the lines only in b
// (added) and only in a (removed), each in first-appearance order.
func diffLines(a, b []string) (added, removed []string) {
	counts := make(map[string]int, len(a))
	for _, l := range a {
		counts[l]++
	}
	for _, l := range b {
		if counts[l] > 0 {
			counts[l]--
			continue
		}
		added = append(added, l)
	}
	for _, l := range a {
		if counts[l] > 0 {
			counts[l]--
			removed = append(removed, l)
		}
	}
	return added, removed
}

func sortedKeys(m map[string]store.ResultRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
