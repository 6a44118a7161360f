// Package runner executes the analyzer over one batch of corpus targets.
//
// Every target in the batch yields exactly one record. Analyzer crashes,
// timeouts and unavailable slots are recorded as data; RunBatch itself
// never fails.
package runner

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/NielsdaWheelz/primer/internal/analyzer"
	"github.com/NielsdaWheelz/primer/internal/config"
	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/events"
	"github.com/NielsdaWheelz/primer/internal/fetch"
	"github.com/NielsdaWheelz/primer/internal/metrics"
	"github.com/NielsdaWheelz/primer/internal/store"
	"github.com/NielsdaWheelz/primer/internal/telemetry"
)

// Materializer provides the cached checkout for a target.
// *fetch.Fetcher satisfies it.
type Materializer interface {
	Ensure(ctx context.Context, t core.Target) (fetch.Entry, error)
}

var _ Materializer = (*fetch.Fetcher)(nil)

// Executor runs one batch. Fields other than Materializer and Invoker are
// optional.
type Executor struct {
	Materializer Materializer
	Invoker      analyzer.Invoker

	// Analyzer supplies the worker count and default timeout.
	Analyzer config.AnalyzerSettings

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Events  *events.Log
	Now     func() time.Time
}

// RunBatch analyzes every target in batch and returns one record per
// target, in batch order. When ctx is cancelled, targets not yet finished
// are recorded as skipped.
func (e *Executor) RunBatch(ctx context.Context, batch []core.Target) []store.ResultRecord {
	records := make([]store.ResultRecord, len(batch))
	e.Metrics.SetBatchTargets(len(batch))

	workers := e.Analyzer.Workers
	if workers < 1 {
		workers = 1
	}

	// Each goroutine owns records[i]; nothing else writes to the slice.
	var g errgroup.Group
	g.SetLimit(workers)
	for i, t := range batch {
		g.Go(func() error {
			records[i] = e.runTarget(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

func (e *Executor) runTarget(ctx context.Context, t core.Target) store.ResultRecord {
	ctx, span := telemetry.Tracer().Start(ctx, "run.target", trace.WithAttributes(
		attribute.String("primer.target", t.Name),
		attribute.String("primer.revision", t.Revision),
	))
	defer span.End()

	start := e.now()
	rec := e.analyze(ctx, t)
	if rec.Status == store.StatusSkipped {
		rec.DurationMS = e.now().Sub(start).Milliseconds()
	}

	span.SetAttributes(attribute.String("primer.status", string(rec.Status)))
	if rec.Status.IsFailure() || rec.Status == store.StatusSkipped {
		span.SetStatus(codes.Error, rec.Reason)
	}

	e.Metrics.ObserveTarget(string(rec.Status), time.Duration(rec.DurationMS)*time.Millisecond)
	_ = e.Events.Emit(events.TargetFinished, events.TargetFinishedData(
		rec.Target, string(rec.Status), rec.ExitCode, rec.DurationMS, rec.Reason))

	attrs := []any{
		slog.String("target", rec.Target),
		slog.String("status", string(rec.Status)),
		slog.Int64("duration_ms", rec.DurationMS),
	}
	if rec.Reason != "" {
		attrs = append(attrs, slog.String("reason", rec.Reason))
	}
	switch rec.Status {
	case store.StatusCrashed, store.StatusTimedOut, store.StatusSkipped:
		e.logger().Warn("target finished", attrs...)
	default:
		e.logger().Info("target finished", attrs...)
	}
	return rec
}

// analyze materializes t and invokes the analyzer on it.
func (e *Executor) analyze(ctx context.Context, t core.Target) store.ResultRecord {
	rec := store.ResultRecord{Target: t.Name, Revision: t.Revision}

	if ctx.Err() != nil {
		return skipped(rec, "run cancelled")
	}

	entry, err := e.Materializer.Ensure(ctx, t)
	if err != nil {
		if ctx.Err() != nil || errors.GetCode(err) == errors.ECancelled {
			return skipped(rec, "run cancelled")
		}
		return skipped(rec, "corpus slot unavailable: "+err.Error())
	}
	rec.Commit = entry.Commit

	out := e.Invoker.Invoke(ctx, analyzer.Request{
		Target:  t,
		Dir:     entry.Dir,
		Timeout: e.Analyzer.TimeoutFor(t),
	})

	rec.Status = out.Status
	rec.ExitCode = out.ExitCode
	if out.Signal != "" {
		sig := out.Signal
		rec.Signal = &sig
	}
	rec.DurationMS = out.Duration.Milliseconds()
	rec.Stdout = out.Stdout
	rec.Stderr = out.Stderr
	rec.OutputTruncated = out.Truncated
	rec.Reason = out.Reason
	return rec
}

func skipped(rec store.ResultRecord, reason string) store.ResultRecord {
	rec.Status = store.StatusSkipped
	rec.Reason = reason
	return rec
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
