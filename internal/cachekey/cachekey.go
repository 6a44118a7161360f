// Package cachekey derives, persists, and reads back the corpus cache key
// (the "commit string") that gates reuse of the cloned corpus.
package cachekey

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"os"
	"regexp"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/fs"
)

// schema is mixed into every key so a change to the derivation invalidates
// caches written by older binaries.
const schema = "primer-cachekey-v1"

// Key is a deterministic corpus fingerprint: 64 lowercase hex characters.
type Key string

func (k Key) String() string { return string(k) }

// Short returns the first 12 characters, for log lines.
func (k Key) Short() string {
	if len(k) <= 12 {
		return string(k)
	}
	return string(k[:12])
}

var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Derive computes the key for a registry snapshot. It is a pure function of
// the (name, revision) pairs, the analyzer version and the environment id;
// target order does not matter.
func Derive(targets []core.Target, analyzerVersion, envID string) Key {
	h := sha256.New()
	writeField(h, schema)
	writeField(h, analyzerVersion)
	writeField(h, envID)

	sorted := core.SortByName(targets)
	writeCount(h, len(sorted))
	for _, t := range sorted {
		writeField(h, t.Name)
		writeField(h, t.Revision)
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// writeField length-prefixes s so that adjacent fields cannot collide
// ("ab"+"c" vs "a"+"bc").
func writeField(h hash.Hash, s string) {
	writeCount(h, len(s))
	h.Write([]byte(s))
}

func writeCount(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}

// Persist writes key to path atomically with a trailing newline.
func Persist(key Key, path string) error {
	if !keyPattern.MatchString(string(key)) {
		return errors.NewWithDetails(errors.EInternal, "refusing to persist malformed cache key", map[string]string{"path": path})
	}
	if err := fs.WriteFileAtomic(path, []byte(string(key)+"\n"), 0o644); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write commit string", err, map[string]string{"path": path})
	}
	return nil
}

// Read loads a key written by Persist.
// Returns E_CACHE_KEY_MISSING when the file does not exist and
// E_CACHE_KEY_CORRUPT when it cannot be read or is not a valid key.
func Read(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewWithDetails(errors.ECacheKeyMissing, "commit string not found", map[string]string{"path": path})
		}
		return "", errors.WrapWithDetails(errors.ECacheKeyCorrupt, "failed to read commit string", err, map[string]string{"path": path})
	}

	s := strings.TrimSpace(string(data))
	if !keyPattern.MatchString(s) {
		return "", errors.NewWithDetails(errors.ECacheKeyCorrupt, "commit string is not a 64-character hex digest", map[string]string{"path": path})
	}
	return Key(s), nil
}
