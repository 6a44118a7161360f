package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/NielsdaWheelz/primer/internal/aggregate"
	"github.com/NielsdaWheelz/primer/internal/analyzer"
	"github.com/NielsdaWheelz/primer/internal/cachekey"
	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/events"
	"github.com/NielsdaWheelz/primer/internal/fetch"
	"github.com/NielsdaWheelz/primer/internal/partition"
	"github.com/NielsdaWheelz/primer/internal/render"
	"github.com/NielsdaWheelz/primer/internal/runner"
	"github.com/NielsdaWheelz/primer/internal/store"
)

// RunOpts holds options for the run command.
type RunOpts struct {
	Common
	ObservabilityOpts

	// Type labels the run ("main", "pr"); it is part of artifact names.
	Type string

	Batches  int
	BatchIdx int

	// CommitStringFile overrides the default commit string location.
	CommitStringFile string
}

// Run implements `primer run`.
// Analyzes batch BatchIdx of Batches and writes its artifact and warnings.
// Per-target crashes and timeouts are data; Run fails only for
// configuration problems, an unusable cache, or unwritable output. When ctx
// is cancelled the partial artifact is still written and E_CANCELLED is
// returned.
func Run(ctx context.Context, deps Deps, opts RunOpts) error {
	if err := store.ValidateRunType(opts.Type); err != nil {
		return err
	}
	if err := partition.Validate(opts.Batches, opts.BatchIdx); err != nil {
		return err
	}

	s, err := openSession(deps, opts.Common)
	if err != nil {
		return err
	}
	if deps.Invoker == nil {
		if _, err := analyzer.CheckInstalled(deps.Runner, s.settings.Analyzer.Command); err != nil {
			return err
		}
	}
	id, err := s.resolveIdentity(ctx)
	if err != nil {
		return err
	}

	keyPath := s.commitStringPath(opts.CommitStringFile, id.EnvID)
	key, err := cachekey.Read(keyPath)
	if err != nil {
		return err
	}

	m, finish, err := observability(s.logger, opts.ObservabilityOpts)
	if err != nil {
		return err
	}
	defer finish()

	runID := uuid.NewString()
	log := events.NewLog(s.store.BatchEventsPath(id.EnvID, opts.Type, opts.BatchIdx), runID)
	log.Now = deps.now

	f := fetch.New(deps.Runner, s.store, fetch.OptionsFrom(s.settings.Fetch), s.logger, m)
	f.Now = deps.now
	if err := s.checkCache(f, key, id, log); err != nil {
		return err
	}

	batch, err := partition.Partition(s.registry.Targets(), opts.Batches, opts.BatchIdx)
	if err != nil {
		return err
	}
	s.logger.Info("batch starting",
		slog.String("run_id", runID),
		slog.String("type", opts.Type),
		slog.String("env_id", id.EnvID),
		slog.Int("batch_idx", opts.BatchIdx),
		slog.Int("batches", opts.Batches),
		slog.Int("targets", len(batch)),
	)
	_ = log.Emit(events.BatchStarted, events.BatchStartedData(opts.Type, id.EnvID, opts.Batches, opts.BatchIdx, core.Names(batch)))

	started := deps.now()
	ex := &runner.Executor{
		Materializer: f,
		Invoker:      s.invoker(),
		Analyzer:     s.settings.Analyzer,
		Logger:       s.logger,
		Metrics:      m,
		Events:       log,
		Now:          deps.now,
	}
	records := ex.RunBatch(ctx, batch)
	cancelled := ctx.Err() != nil

	artifact := aggregate.Aggregate(records, aggregate.Meta{
		RunID:           runID,
		RunType:         opts.Type,
		EnvID:           id.EnvID,
		Batches:         opts.Batches,
		BatchIdx:        opts.BatchIdx,
		CacheKey:        key.String(),
		AnalyzerVersion: id.AnalyzerVersion,
		StartedAt:       started,
		FinishedAt:      deps.now(),
		Cancelled:       cancelled,
	})
	paths, err := aggregate.Write(s.store, artifact, s.settings.Warnings.MaxBytes)
	if err != nil {
		return err
	}

	duration := deps.now().Sub(started)
	_ = log.Emit(events.BatchFinished, events.BatchFinishedData(
		countsByName(artifact.Counts), cancelled, duration.Milliseconds(), paths.Artifact))
	s.logger.Info("batch finished",
		slog.String("run_id", runID),
		slog.Duration("duration", duration),
		slog.String("artifact", paths.Artifact),
		slog.Bool("cancelled", cancelled),
	)

	render.WriteBatchSummary(deps.Stdout, render.BatchSummary{Artifact: artifact, Paths: []string{paths.Artifact, paths.Warnings}})
	if w := aggregate.Warnings(artifact, s.settings.Warnings.MaxBytes); w != "" {
		for _, line := range strings.Split(strings.TrimRight(w, "\n"), "\n") {
			_, _ = fmt.Fprintln(deps.Stderr, "warning: "+line)
		}
	}

	if cancelled {
		return cancelledError("run cancelled; partial artifact written", map[string]string{
			"artifact":  paths.Artifact,
			"batch_idx": strconv.Itoa(opts.BatchIdx),
		})
	}
	return nil
}

// checkCache compares the persisted key with the corpus manifest. A stale
// or missing manifest is only a warning: each target is still ensured
// lazily, which needs no network for slots that are already complete.
// An unreadable manifest returns E_CACHE_UNREADABLE.
func (s *session) checkCache(f *fetch.Fetcher, key cachekey.Key, id identity, log *events.Log) error {
	if expected := s.cacheKey(id); expected != key {
		s.logger.Warn("commit string does not match the current registry and analyzer",
			slog.String("commit_string", key.Short()),
			slog.String("current", expected.Short()),
		)
	}

	current, found, err := f.CheckManifest(key.String())
	if err != nil {
		return err
	}
	if current {
		return nil
	}

	s.logger.Warn("corpus cache is stale or incomplete; missing targets will be fetched",
		slog.String("cache_key", key.Short()),
		slog.String("manifest_key", found),
	)
	_ = log.Emit(events.CacheStale, events.CacheStaleData(key.String(), found))
	return nil
}

// invoker returns the analyzer invoker for the loaded settings.
func (s *session) invoker() analyzer.Invoker {
	if s.deps.Invoker != nil {
		return s.deps.Invoker
	}
	a := s.settings.Analyzer
	return &analyzer.ProcessInvoker{
		Command:        a.Command,
		Args:           a.Args,
		Env:            a.Env,
		MaxOutputBytes: a.MaxOutputBytes,
		Classifier: analyzer.Classifier{
			CrashExitMask: a.CrashExitMask,
			CrashMarkers:  a.CrashMarkers,
		},
	}
}

func countsByName(counts map[store.Status]int) map[string]int {
	out := make(map[string]int, len(counts))
	for s, n := range counts {
		out[string(s)] = n
	}
	return out
}
