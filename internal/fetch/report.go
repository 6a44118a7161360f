package fetch

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/events"
	"github.com/NielsdaWheelz/primer/internal/store"
)

// Result is the outcome of ensuring one target.
type Result struct {
	Target     string `json:"target"`
	Revision   string `json:"revision"`
	Commit     string `json:"commit,omitempty"`
	Cached     bool   `json:"cached"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// OK reports whether the target was materialized.
func (r Result) OK() bool { return r.ErrorCode == "" }

// Report summarizes EnsureAll. Results are ordered by target name.
type Report struct {
	SchemaVersion string   `json:"schema_version"`
	CacheKey      string   `json:"cache_key,omitempty"`
	Cancelled     bool     `json:"cancelled"`
	Results       []Result `json:"results"`
}

// OK reports whether every target was materialized.
func (r Report) OK() bool {
	if r.Cancelled {
		return false
	}
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Failed returns the results that did not materialize.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// EnsureAll ensures every target with at most Opts.Workers fetches in
// flight. A failing target never stops the others; its failure is recorded
// in the report. log may be nil.
func (f *Fetcher) EnsureAll(ctx context.Context, targets []core.Target, log *events.Log) Report {
	sorted := core.SortByName(targets)
	results := make([]Result, len(sorted))

	// Plain Group, not WithContext: one target's error must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(f.Opts.Workers)

	for i, t := range sorted {
		g.Go(func() error {
			start := f.Now()
			e, err := f.Ensure(ctx, t)

			res := Result{
				Target:     t.Name,
				Revision:   t.Revision,
				Commit:     e.Commit,
				Cached:     e.Cached,
				Attempts:   e.Attempts,
				DurationMS: f.Now().Sub(start).Milliseconds(),
			}
			if err != nil {
				res.ErrorCode = string(errors.GetCode(err))
				if res.ErrorCode == "" {
					res.ErrorCode = string(errors.EFetchFailed)
				}
				res.Error = err.Error()
				if pe, ok := errors.AsPrimerError(err); ok {
					if n, convErr := strconv.Atoi(pe.Details["attempts"]); convErr == nil {
						res.Attempts = n
					}
				}
			}
			results[i] = res

			_ = log.Emit(events.FetchFinished, events.FetchFinishedData(
				res.Target, res.Revision, res.Commit, res.Cached, res.Attempts, res.DurationMS, res.ErrorCode))
			return nil
		})
	}
	_ = g.Wait()

	return Report{
		SchemaVersion: store.SchemaVersion,
		Cancelled:     ctx.Err() != nil,
		Results:       results,
	}
}

// WriteManifest records that every target in report is materialized for
// key. It refuses partial reports so that the manifest is all-or-nothing.
func (f *Fetcher) WriteManifest(key string, report Report) error {
	if !report.OK() {
		return errors.New(errors.EInternal, "refusing to write manifest for an incomplete corpus")
	}
	m := store.Manifest{
		SchemaVersion: store.SchemaVersion,
		CacheKey:      key,
		CreatedAt:     f.Now().UTC().Format(time.RFC3339),
		Targets:       make([]store.ManifestEntry, 0, len(report.Results)),
	}
	for _, r := range report.Results {
		m.Targets = append(m.Targets, store.ManifestEntry{Name: r.Target, Revision: r.Revision, Commit: r.Commit})
	}
	path := f.Store.ManifestPath()
	if err := store.WriteManifest(path, m); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write corpus manifest", err, map[string]string{"path": path})
	}
	return nil
}

// CheckManifest compares the corpus manifest with key. current is true
// only when a manifest exists and was written for exactly key; found is
// the key recorded in the manifest ("" when there is none).
// A manifest that exists but does not decode counts as stale. Only an I/O
// failure reading it returns E_CACHE_UNREADABLE.
func (f *Fetcher) CheckManifest(key string) (current bool, found string, err error) {
	path := f.Store.ManifestPath()
	m, ok, err := store.ReadManifest(path)
	if err != nil {
		if ok {
			f.Logger.Warn("corpus manifest is corrupt; treating cache as stale",
				slog.String("path", path), slog.Any("error", err))
			return false, "", nil
		}
		return false, "", errors.WrapWithDetails(errors.ECacheUnreadable, "corpus manifest is unreadable", err, map[string]string{"path": path})
	}
	if !ok {
		return false, "", nil
	}
	return m.CacheKey == key, m.CacheKey, nil
}
