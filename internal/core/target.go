// Package core holds primer's domain values: corpus targets and their
// naming rules.
package core

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/NielsdaWheelz/primer/internal/errors"
)

// Name validation constants.
const (
	NameMinLen = 1
	NameMaxLen = 64
)

// namePattern validates target names: lowercase alphanumerics plus '-',
// '_' and '.', starting with a letter or digit. Names become directory
// components, so separators and leading dots are excluded.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Target is one corpus entry: an external codebase pinned at a revision.
// Targets are loaded once from the registry and never mutated.
type Target struct {
	// Name is the stable unique key.
	Name string `json:"name" yaml:"name" validate:"required,targetname"`

	// URL is the git source location (remote URL or local path).
	URL string `json:"url" yaml:"url" validate:"required"`

	// Revision is the pinned commit sha, tag, or branch.
	Revision string `json:"revision" yaml:"revision" validate:"required,excludesall= \t\n"`

	// Paths are the checkout-relative directories handed to the analyzer.
	// Empty means the checkout root.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty" validate:"dive,required"`

	// Args are extra analyzer arguments for this target only.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Timeout overrides the analyzer timeout for this target. Zero means default.
	Timeout time.Duration `json:"-" yaml:"-"`
}

// AnalysisPaths returns the paths to analyze, defaulting to ".".
func (t Target) AnalysisPaths() []string {
	if len(t.Paths) == 0 {
		return []string{"."}
	}
	return slices.Clone(t.Paths)
}

// IsFullSHA reports whether the revision is a full 40-hex commit id, in
// which case a fetched checkout must resolve to exactly that commit.
func (t Target) IsFullSHA() bool {
	return fullSHAPattern.MatchString(strings.ToLower(t.Revision))
}

var fullSHAPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ValidateName checks a target name. Returns E_INVALID_NAME with details.
func ValidateName(name string) error {
	if len(name) < NameMinLen {
		return errors.NewWithDetails(
			errors.EInvalidName,
			"target name must not be empty",
			map[string]string{"target": name},
		)
	}
	if len(name) > NameMaxLen {
		return errors.NewWithDetails(
			errors.EInvalidName,
			"target name must be at most "+strconv.Itoa(NameMaxLen)+" characters",
			map[string]string{"target": name, "max_length": strconv.Itoa(NameMaxLen)},
		)
	}
	if !namePattern.MatchString(name) {
		return errors.NewWithDetails(
			errors.EInvalidName,
			"target name must contain only lowercase letters, digits, '.', '_' and '-', and start with a letter or digit",
			map[string]string{"target": name},
		)
	}
	return nil
}

// SortByName returns a copy of targets ordered by name. Registry iteration
// order must never leak into partitioning or hashing.
func SortByName(targets []Target) []Target {
	out := slices.Clone(targets)
	slices.SortStableFunc(out, func(a, b Target) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Names returns the target names in the given order.
func Names(targets []Target) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}
