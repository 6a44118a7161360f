package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/primer/internal/commands"
	"github.com/NielsdaWheelz/primer/internal/errors"
)

func newPrepareCmd() *cobra.Command {
	var makeCommitString, readCommitString, clone bool
	var opts commands.PrepareOpts

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Compute the corpus cache key or clone the corpus",
		Long: `Compute the corpus cache key or clone the corpus.

  --make-commit-string  derive the cache key for the registry, analyzer
                        version and environment; persist and print it
  --read-commit-string  print the persisted cache key
  --clone               fetch every registry target into the corpus cache

Exactly one mode is required. A clone in which some targets fail still exits
0; failures are listed on stderr and in fetch_report.json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !makeCommitString && !readCommitString && !clone {
				_ = cmd.Help()
				return errors.New(errors.EUsage, "one of --make-commit-string, --read-commit-string or --clone is required")
			}

			deps, err := newDeps(cmd)
			if err != nil {
				return err
			}
			opts.Common = common(0)

			ctx, stop := signalContext(cmd)
			defer stop()

			switch {
			case makeCommitString:
				return commands.MakeCommitString(ctx, deps, opts)
			case readCommitString:
				return commands.ReadCommitString(ctx, deps, opts)
			default:
				return commands.Clone(ctx, deps, opts)
			}
		},
	}

	cmd.Flags().BoolVar(&makeCommitString, "make-commit-string", false, "derive, persist and print the cache key")
	cmd.Flags().BoolVar(&readCommitString, "read-commit-string", false, "print the persisted cache key")
	cmd.Flags().BoolVar(&clone, "clone", false, "fetch the corpus into the cache")
	cmd.MarkFlagsMutuallyExclusive("make-commit-string", "read-commit-string", "clone")

	cmd.Flags().StringVar(&opts.CommitStringFile, "commit-string-file", "", "commit string path (default: <output>/commit_string_<env>.txt)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	cmd.Flags().StringVar(&opts.TraceFile, "trace-file", "", "write OpenTelemetry spans to this file")

	return cmd
}
