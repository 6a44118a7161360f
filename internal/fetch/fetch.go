// Package fetch materializes corpus targets into content-addressed cache
// slots.
//
// A slot is valid only when its sibling completion marker exists and names
// the same target and revision. Checkouts are built in a temp directory,
// renamed into place, and only then marked complete, so an interrupted
// fetch never leaves a slot that looks valid.
package fetch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/NielsdaWheelz/primer/internal/config"
	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/exec"
	"github.com/NielsdaWheelz/primer/internal/fs"
	"github.com/NielsdaWheelz/primer/internal/metrics"
	"github.com/NielsdaWheelz/primer/internal/store"
	"github.com/NielsdaWheelz/primer/internal/telemetry"
)

// Options tunes fetching.
type Options struct {
	Workers        int
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Timeout bounds one fetch attempt, including every git command in it.
	Timeout time.Duration

	// Rate is the maximum number of attempts started per second; 0 is unlimited.
	Rate float64

	// Depth is passed as git fetch --depth; 0 fetches full history.
	Depth int
}

// OptionsFrom converts fetch settings.
func OptionsFrom(s config.FetchSettings) Options {
	return Options{
		Workers:        s.Workers,
		Attempts:       s.Attempts,
		InitialBackoff: s.InitialBackoff,
		MaxBackoff:     s.MaxBackoff,
		Timeout:        s.Timeout,
		Rate:           s.Rate,
		Depth:          s.Depth,
	}
}

// Entry is a materialized target.
type Entry struct {
	Target   core.Target
	Dir      string
	Commit   string
	Cached   bool // true when no network access was needed
	Attempts int
}

// Fetcher ensures targets are present in the corpus cache. Safe for
// concurrent use; concurrent Ensure calls for one slot share a single fetch.
type Fetcher struct {
	Runner  exec.CommandRunner
	Store   *store.Store
	Opts    Options
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time

	limiter *rate.Limiter
	flight  singleflight.Group
}

// New creates a Fetcher. Zero-valued options get conservative defaults.
func New(runner exec.CommandRunner, st *store.Store, opts Options, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}

	limit, burst := rate.Inf, 1
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
		burst = int(math.Max(1, math.Ceil(opts.Rate)))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		Runner:  runner,
		Store:   st,
		Opts:    opts,
		Logger:  logger,
		Metrics: m,
		Now:     time.Now,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Lookup returns the entry for t if its slot is complete. It never
// touches the network and never modifies the cache.
func (f *Fetcher) Lookup(t core.Target) (Entry, bool) {
	m, err := store.ReadMarker(f.Store.MarkerPath(t))
	if err != nil || !m.Matches(t) {
		return Entry{}, false
	}
	dir := f.Store.SlotDir(t)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Entry{}, false
	}
	return Entry{Target: t, Dir: dir, Commit: m.Commit, Cached: true}, true
}

// Ensure returns a complete cache entry for t, fetching it when the slot is
// missing or invalid. Returns E_FETCH_FAILED after exhausting retries,
// E_REVISION_MISMATCH when a pinned sha resolves differently, and
// E_CANCELLED when ctx ends.
func (f *Fetcher) Ensure(ctx context.Context, t core.Target) (Entry, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fetch.ensure", trace.WithAttributes(
		attribute.String("primer.target", t.Name),
		attribute.String("primer.revision", t.Revision),
	))
	defer span.End()
	start := f.Now()

	if e, ok := f.Lookup(t); ok {
		span.SetAttributes(attribute.Bool("primer.cached", true))
		f.Metrics.ObserveFetch(metrics.FetchCached, f.Now().Sub(start))
		return e, nil
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, cancelled(t, err)
	}

	// Callers sharing one fetch all observe the first caller's ctx: if it
	// is cancelled, the others get the same E_CANCELLED.
	v, err, _ := f.flight.Do(f.Store.SlotDir(t), func() (any, error) {
		if e, ok := f.Lookup(t); ok {
			return e, nil
		}
		return f.materialize(ctx, t)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.GetCode(err)))
		f.Metrics.ObserveFetch(metrics.FetchFailed, f.Now().Sub(start))
		return Entry{}, err
	}

	e := v.(Entry)
	span.SetAttributes(
		attribute.Bool("primer.cached", e.Cached),
		attribute.String("primer.commit", e.Commit),
		attribute.Int("primer.attempts", e.Attempts),
	)
	result := metrics.FetchFetched
	if e.Cached {
		result = metrics.FetchCached
	}
	f.Metrics.ObserveFetch(result, f.Now().Sub(start))
	return e, nil
}

// materialize discards whatever is in the slot and fetches t with retries.
func (f *Fetcher) materialize(ctx context.Context, t core.Target) (Entry, error) {
	slot := f.Store.SlotDir(t)
	markerPath := f.Store.MarkerPath(t)
	corpus := f.Store.CorpusDir()
	details := map[string]string{"target": t.Name, "revision": t.Revision, "path": slot}

	// The marker goes first so a half-removed slot is never marked complete.
	if err := os.Remove(markerPath); err != nil && !os.IsNotExist(err) {
		return Entry{}, errors.WrapWithDetails(errors.ECacheUnreadable, "failed to remove stale completion marker", err, details)
	}
	if err := removeSlot(slot, corpus); err != nil {
		return Entry{}, errors.WrapWithDetails(errors.ECacheUnreadable, "failed to remove incomplete slot", err, details)
	}
	if err := os.MkdirAll(filepath.Dir(slot), 0o755); err != nil {
		return Entry{}, errors.WrapWithDetails(errors.ECacheUnreadable, "failed to create target directory", err, details)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.Opts.InitialBackoff
	eb.MaxInterval = f.Opts.MaxBackoff

	attempts := 0
	op := func() (string, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}
		attempts++
		f.Metrics.IncFetchAttempt()

		commit, err := f.attempt(ctx, t, slot)
		if err == nil {
			return commit, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if errors.GetCode(err) == errors.ERevisionMismatch {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	notify := func(err error, wait time.Duration) {
		f.Logger.Warn("fetch attempt failed, retrying",
			slog.String("target", t.Name),
			slog.Int("attempt", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
	}

	maxElapsed := time.Duration(f.Opts.Attempts) * (f.Opts.Timeout + f.Opts.MaxBackoff)
	commit, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(f.Opts.Attempts)),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(notify),
	)
	details["attempts"] = strconv.Itoa(attempts)
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, cancelled(t, ctx.Err())
		}
		if errors.GetCode(err) == errors.ERevisionMismatch {
			return Entry{}, err
		}
		return Entry{}, errors.WrapWithDetails(errors.EFetchFailed, "failed to fetch "+t.Name+" at "+t.Revision, err, details)
	}

	if e, ok := f.Lookup(t); ok {
		e.Cached = false
		e.Attempts = attempts
		return e, nil
	}

	m := store.Marker{
		SchemaVersion: store.SchemaVersion,
		Name:          t.Name,
		URL:           t.URL,
		Revision:      t.Revision,
		Commit:        commit,
		FetchedAt:     f.Now().UTC().Format(time.RFC3339),
	}
	if err := store.WriteMarker(markerPath, m); err != nil {
		return Entry{}, errors.WrapWithDetails(errors.EPersistFailed, "failed to write completion marker", err, details)
	}

	f.Logger.Info("fetched target",
		slog.String("target", t.Name),
		slog.String("revision", t.Revision),
		slog.String("commit", commit),
		slog.Int("attempts", attempts),
	)
	return Entry{Target: t, Dir: slot, Commit: commit, Attempts: attempts}, nil
}

// attempt performs one fetch into a fresh temp directory and renames it to
// slot on success. Returns the checked-out commit.
func (f *Fetcher) attempt(ctx context.Context, t core.Target, slot string) (commit string, err error) {
	ctx, cancel := context.WithTimeout(ctx, f.Opts.Timeout)
	defer cancel()

	corpus := f.Store.CorpusDir()
	tmp := slot + ".tmp-" + uuid.NewString()[:8]
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", fmt.Errorf("create temp slot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = removeSlot(tmp, corpus)
		}
	}()

	git := func(args ...string) (string, error) {
		res, err := f.Runner.Run(ctx, "git", args, exec.RunOpts{Dir: tmp, Env: gitEnv})
		if err != nil {
			if stderrors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("git %s timed out after %s", args[0], f.Opts.Timeout)
			}
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		if res.ExitCode != 0 {
			return "", fmt.Errorf("git %s exited %d: %s", args[0], res.ExitCode, lastLine(res.Stderr))
		}
		return strings.TrimSpace(res.Stdout), nil
	}

	if _, err := git("init", "-q"); err != nil {
		return "", err
	}
	if _, err := git("remote", "add", "origin", t.URL); err != nil {
		return "", err
	}
	fetchArgs := []string{"fetch", "-q", "--no-tags"}
	if f.Opts.Depth > 0 {
		fetchArgs = append(fetchArgs, "--depth="+strconv.Itoa(f.Opts.Depth))
	}
	fetchArgs = append(fetchArgs, "origin", t.Revision)
	if _, err := git(fetchArgs...); err != nil {
		return "", err
	}
	if _, err := git("-c", "advice.detachedHead=false", "checkout", "-q", "--detach", "FETCH_HEAD"); err != nil {
		return "", err
	}
	commit, err = git("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}

	if t.IsFullSHA() && !strings.EqualFold(commit, t.Revision) {
		return "", errors.NewWithDetails(errors.ERevisionMismatch, "fetched commit does not match pinned revision",
			map[string]string{"target": t.Name, "revision": t.Revision, "commit": commit})
	}

	// Another writer may have completed the slot while this one fetched.
	// Keep its checkout and discard ours.
	if e, ok := f.Lookup(t); ok {
		_ = removeSlot(tmp, corpus)
		return e.Commit, nil
	}
	// The marker goes before the directory so an interrupted removal is
	// never marked complete.
	if err := os.Remove(f.Store.MarkerPath(t)); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove completion marker: %w", err)
	}
	if err := removeSlot(slot, corpus); err != nil {
		return "", fmt.Errorf("clear slot: %w", err)
	}
	if err := os.Rename(tmp, slot); err != nil {
		return "", fmt.Errorf("rename temp slot: %w", err)
	}
	return commit, nil
}

// gitEnv keeps git from prompting for credentials in CI.
var gitEnv = map[string]string{
	"GIT_TERMINAL_PROMPT": "0",
	"GIT_ASKPASS":         "true",
}

func removeSlot(path, corpus string) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(corpus, 0o755); err != nil {
		return err
	}
	return fs.SafeRemoveAll(path, corpus)
}

func cancelled(t core.Target, cause error) error {
	return errors.WrapWithDetails(errors.ECancelled, "fetch cancelled", cause, map[string]string{"target": t.Name})
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
