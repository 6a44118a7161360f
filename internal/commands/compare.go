package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/NielsdaWheelz/primer/internal/compare"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/render"
)

// CompareOpts holds options for the compare command.
type CompareOpts struct {
	Common

	BaseType string
	PRType   string

	// Out is a file to write markdown to. Empty means stdout.
	Out string

	// MaxLines bounds listed lines per target.
	MaxLines int
}

// Compare implements `primer compare`.
// Diffs every artifact of PRType against BaseType for one environment and
// writes a markdown report. Differences are information, not failure.
func Compare(ctx context.Context, deps Deps, opts CompareOpts) error {
	s, err := openSession(deps, opts.Common)
	if err != nil {
		return err
	}
	id, err := s.resolveEnvID(ctx)
	if err != nil {
		return err
	}

	base, err := compare.Load(s.settings.OutputDir, id, opts.BaseType)
	if err != nil {
		return err
	}
	pr, err := compare.Load(s.settings.OutputDir, id, opts.PRType)
	if err != nil {
		return err
	}

	report := compare.Compare(id, base, pr)
	s.logger.Info("comparison complete",
		slog.Int("compared", report.Compared),
		slog.Int("new_failures", len(report.NewFailures)),
		slog.Int("fixed", len(report.Fixed)),
		slog.Int("message_changes", len(report.Messages)),
	)

	var buf bytes.Buffer
	if err := render.WriteCompareMarkdown(&buf, report, render.CompareOptions{MaxLines: opts.MaxLines}); err != nil {
		return errors.Wrap(errors.EInternal, "failed to render comparison", err)
	}

	if opts.Out == "" {
		_, err := io.Copy(deps.Stdout, &buf)
		return err
	}
	if err := deps.FS.WriteFile(opts.Out, buf.Bytes(), 0o644); err != nil {
		return errors.WrapWithDetails(errors.EPersistFailed, "failed to write comparison", err,
			map[string]string{"path": opts.Out})
	}
	return nil
}

