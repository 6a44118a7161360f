package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/NielsdaWheelz/primer/internal/cachekey"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/events"
	"github.com/NielsdaWheelz/primer/internal/fetch"
	"github.com/NielsdaWheelz/primer/internal/fs"
	"github.com/NielsdaWheelz/primer/internal/render"
)

// PrepareOpts holds options for the prepare subcommands.
type PrepareOpts struct {
	Common
	ObservabilityOpts

	// CommitStringFile overrides the default commit string location.
	CommitStringFile string
}

// MakeCommitString implements `primer prepare --make-commit-string`.
// Derives the cache key for the current registry and analyzer
// environment, persists it, and prints it to stdout.
func MakeCommitString(ctx context.Context, deps Deps, opts PrepareOpts) error {
	s, err := openSession(deps, opts.Common)
	if err != nil {
		return err
	}
	id, err := s.resolveIdentity(ctx)
	if err != nil {
		return err
	}

	key := s.cacheKey(id)
	path := s.commitStringPath(opts.CommitStringFile, id.EnvID)
	if err := cachekey.Persist(key, path); err != nil {
		return err
	}

	s.logger.Info("commit string written",
		slog.String("path", path),
		slog.String("cache_key", key.Short()),
		slog.Int("targets", s.registry.Len()),
	)
	_, _ = fmt.Fprintln(deps.Stdout, key)
	return nil
}

// ReadCommitString implements `primer prepare --read-commit-string`.
// Prints the persisted cache key so an external cache can be keyed on it.
// Returns E_CACHE_KEY_MISSING or E_CACHE_KEY_CORRUPT.
func ReadCommitString(ctx context.Context, deps Deps, opts PrepareOpts) error {
	s, err := openSession(deps, opts.Common)
	if err != nil {
		return err
	}

	path := opts.CommitStringFile
	if path == "" {
		env, err := s.resolveEnvID(ctx)
		if err != nil {
			return err
		}
		path = s.commitStringPath("", env)
	}

	key, err := cachekey.Read(path)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(deps.Stdout, key)
	return nil
}

// Clone implements `primer prepare --clone`.
// Ensures every registry target is in the corpus cache. Failed targets are
// reported and the command still succeeds; the corpus manifest is written
// only when every target is present.
func Clone(ctx context.Context, deps Deps, opts PrepareOpts) error {
	s, err := openSession(deps, opts.Common)
	if err != nil {
		return err
	}
	id, err := s.resolveIdentity(ctx)
	if err != nil {
		return err
	}
	key := s.cacheKey(id)

	m, finish, err := observability(s.logger, opts.ObservabilityOpts)
	if err != nil {
		return err
	}
	defer finish()

	f := fetch.New(deps.Runner, s.store, fetch.OptionsFrom(s.settings.Fetch), s.logger, m)
	f.Now = deps.now
	log := events.NewLog(s.store.PrepareEventsPath(), uuid.NewString())
	log.Now = deps.now

	s.logger.Info("cloning corpus",
		slog.Int("targets", s.registry.Len()),
		slog.String("cache_dir", s.settings.CacheDir),
		slog.String("cache_key", key.Short()),
	)
	rep := f.EnsureAll(ctx, s.registry.Targets(), log)
	rep.CacheKey = key.String()

	reportPath := s.store.FetchReportPath()
	if err := fs.WriteJSONAtomic(reportPath, rep, 0o644); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write fetch report", err,
			map[string]string{"path": reportPath})
	}

	if err := render.WriteFetchTable(deps.Stdout, rep); err != nil {
		return errors.Wrap(errors.EInternal, "failed to write output", err)
	}
	render.WriteFetchFailures(deps.Stderr, rep)

	if rep.Cancelled {
		return cancelledError("clone cancelled", map[string]string{"fetch_report": reportPath})
	}

	failed := len(rep.Failed())
	if failed > 0 {
		s.logger.Warn("corpus incomplete; manifest not written",
			slog.Int("failed", failed),
			slog.Int("targets", len(rep.Results)),
			slog.String("fetch_report", reportPath),
		)
		return nil
	}

	if err := f.WriteManifest(key.String(), rep); err != nil {
		return err
	}
	s.logger.Info("corpus complete",
		slog.String("manifest", s.store.ManifestPath()),
		slog.Int("targets", len(rep.Results)),
	)
	return nil
}
