package store

import (
	"encoding/json"
	"os"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/fs"
)

// SchemaVersion is stamped into every JSON document primer writes.
const SchemaVersion = "1"

// Marker records that a corpus slot is fully materialized. It is written
// only after the slot directory has been renamed into place.
type Marker struct {
	SchemaVersion string `json:"schema_version"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Revision      string `json:"revision"`

	// Commit is the resolved commit id of the checkout.
	Commit string `json:"commit"`

	// FetchedAt is the RFC3339 UTC timestamp of the fetch.
	FetchedAt string `json:"fetched_at"`
}

// Matches reports whether m describes t at its pinned revision.
func (m Marker) Matches(t core.Target) bool {
	return m.SchemaVersion == SchemaVersion &&
		m.Name == t.Name &&
		m.Revision == t.Revision &&
		m.Commit != ""
}

// ReadMarker loads a slot marker. A missing file returns an error
// satisfying os.IsNotExist.
func ReadMarker(path string) (Marker, error) {
	var m Marker
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, err
	}
	return m, nil
}

// WriteMarker writes m atomically.
func WriteMarker(path string, m Marker) error {
	return fs.WriteJSONAtomic(path, m, 0o644)
}

// Manifest lists every target materialized for one cache key. It is only
// written when all targets were ensured, so its presence with a matching
// key means the whole corpus is complete.
type Manifest struct {
	SchemaVersion string          `json:"schema_version"`
	CacheKey      string          `json:"cache_key"`
	CreatedAt     string          `json:"created_at"`
	Targets       []ManifestEntry `json:"targets"`
}

// ManifestEntry is one materialized target.
type ManifestEntry struct {
	Name     string `json:"name"`
	Revision string `json:"revision"`
	Commit   string `json:"commit"`
}

// ReadManifest loads the corpus manifest. found is false when the file
// does not exist.
func ReadManifest(path string) (m Manifest, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, true, err
	}
	return m, true, nil
}

// WriteManifest writes m atomically.
func WriteManifest(path string, m Manifest) error {
	return fs.WriteJSONAtomic(path, m, 0o644)
}
