package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotUnderPrefix is returned when a removal target escapes its allowed root.
type ErrNotUnderPrefix struct {
	Target string
	Prefix string
}

func (e *ErrNotUnderPrefix) Error() string {
	return fmt.Sprintf("target %q is not under allowed prefix %q", e.Target, e.Prefix)
}

// SafeRemoveAll removes target only if, after cleaning and symlink
// resolution, it is a proper subpath of allowedPrefix. The corpus fetcher
// uses it to discard half-written slots without ever touching anything
// outside the cache root.
//
// A missing target is a no-op. An unresolvable prefix fails closed.
func SafeRemoveAll(target, allowedPrefix string) error {
	cleanTarget := filepath.Clean(target)

	resolvedTarget, err := filepath.EvalSymlinks(cleanTarget)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	resolvedPrefix, err := filepath.EvalSymlinks(filepath.Clean(allowedPrefix))
	if err != nil {
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	if !IsSubpath(resolvedTarget, resolvedPrefix) {
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	return os.RemoveAll(cleanTarget)
}

// IsSubpath reports whether target lies strictly inside prefix.
// Both paths must already be cleaned and resolved.
func IsSubpath(target, prefix string) bool {
	withSep := prefix
	if !strings.HasSuffix(withSep, string(filepath.Separator)) {
		withSep += string(filepath.Separator)
	}
	return strings.HasPrefix(target, withSep) && len(target) > len(prefix)
}
