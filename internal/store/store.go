// Package store defines primer's on-disk layout: corpus slots and their
// completion markers under the cache dir, and commit strings, batch
// artifacts, warnings and event logs under the output dir.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
)

// Store resolves paths for one cache dir and one output dir.
type Store struct {
	CacheDir  string // corpus cache root (restored/saved by the CI cache)
	OutputDir string // artifacts handed to the artifact store
}

// NewStore creates a Store for the given directories.
func NewStore(cacheDir, outputDir string) *Store {
	return &Store{CacheDir: cacheDir, OutputDir: outputDir}
}

// CorpusDir returns the root of all corpus slots.
// Format: <cache>/corpus/
func (s *Store) CorpusDir() string {
	return filepath.Join(s.CacheDir, "corpus")
}

// TargetDir returns the directory holding every slot of one target.
// Format: <cache>/corpus/<name>/
func (s *Store) TargetDir(name string) string {
	return filepath.Join(s.CorpusDir(), name)
}

// SlotDir returns the content-addressed checkout directory for a target at
// its pinned revision.
// Format: <cache>/corpus/<name>/<sha256(revision)[:16]>/
func (s *Store) SlotDir(t core.Target) string {
	return filepath.Join(s.TargetDir(t.Name), RevisionDigest(t.Revision))
}

// MarkerPath returns the completion marker for a slot. The marker is a
// sibling file so that removing the slot directory never leaves a marker
// inside a half-deleted tree.
// Format: <slot>.complete.json
func (s *Store) MarkerPath(t core.Target) string {
	return s.SlotDir(t) + ".complete.json"
}

// ManifestPath returns the whole-corpus manifest path.
// Format: <cache>/corpus/manifest.json
func (s *Store) ManifestPath() string {
	return filepath.Join(s.CorpusDir(), "manifest.json")
}

// CommitStringPath returns where the cache key is persisted for env.
// Format: <output>/commit_string_<env>.txt
func (s *Store) CommitStringPath(env string) string {
	return filepath.Join(s.OutputDir, "commit_string_"+SanitizeEnv(env)+".txt")
}

// ArtifactPath returns the batch artifact path.
// Format: <output>/output_<env>_<type>_batch<i>.json
func (s *Store) ArtifactPath(env, runType string, batchIdx int) string {
	return filepath.Join(s.OutputDir, ArtifactName(env, runType, batchIdx))
}

// WarningsPath returns the bounded warnings stream path.
// Format: <output>/warnings_<env>_<type>_batch<i>.txt
func (s *Store) WarningsPath(env, runType string, batchIdx int) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("warnings_%s_%s_batch%d.txt", SanitizeEnv(env), runType, batchIdx))
}

// BatchEventsPath returns the event log for one batch.
// Format: <output>/events_<env>_<type>_batch<i>.jsonl
func (s *Store) BatchEventsPath(env, runType string, batchIdx int) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("events_%s_%s_batch%d.jsonl", SanitizeEnv(env), runType, batchIdx))
}

// PrepareEventsPath returns the event log written by prepare.
// Format: <output>/events_prepare.jsonl
func (s *Store) PrepareEventsPath() string {
	return filepath.Join(s.OutputDir, "events_prepare.jsonl")
}

// FetchReportPath returns the per-target clone report.
// Format: <output>/fetch_report.json
func (s *Store) FetchReportPath() string {
	return filepath.Join(s.OutputDir, "fetch_report.json")
}

// ArtifactName returns the deterministic artifact file name.
func ArtifactName(env, runType string, batchIdx int) string {
	return fmt.Sprintf("output_%s_%s_batch%d.json", SanitizeEnv(env), runType, batchIdx)
}

var artifactNamePattern = regexp.MustCompile(`^output_([a-z0-9.-]+)_([a-z0-9][a-z0-9.-]*)_batch([0-9]+)\.json$`)

// ParseArtifactName is the inverse of ArtifactName. Env ids never contain
// '_' after sanitizing and run types are validated to exclude it, so the
// split is unambiguous.
func ParseArtifactName(base string) (env, runType string, batchIdx int, ok bool) {
	m := artifactNamePattern.FindStringSubmatch(base)
	if m == nil {
		return "", "", 0, false
	}
	idx, err := strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, false
	}
	return m[1], m[2], idx, true
}

// RevisionDigest returns the first 16 hex characters of sha256(revision).
func RevisionDigest(revision string) string {
	sum := sha256.Sum256([]byte(revision))
	return hex.EncodeToString(sum[:])[:16]
}

// SanitizeEnv lower-cases env and replaces every run of characters outside
// [a-z0-9.] with '-'. Leading and trailing dashes are dropped.
func SanitizeEnv(env string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(env) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

var runTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*$`)

// ValidateRunType checks a --type label. Labels are embedded in artifact
// names, so underscores and separators are rejected.
func ValidateRunType(runType string) error {
	if len(runType) > 32 || !runTypePattern.MatchString(runType) {
		return errors.NewWithDetails(
			errors.EUsage,
			"run type must be 1-32 characters of lowercase letters, digits, '.' and '-'",
			map[string]string{"type": runType},
		)
	}
	return nil
}
