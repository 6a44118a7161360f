package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/primer/internal/commands"
)

func newRunCmd() *cobra.Command {
	var opts commands.RunOpts
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the analyzer over one batch of the corpus",
		Long: `Run the analyzer over one batch of the corpus.

Targets are sorted by name and split into --batches contiguous batches whose
sizes differ by at most one; batch --batchIdx is analyzed. Writes
output_<env>_<type>_batch<i>.json and a bounded warnings file of crashes and
timeouts. Crashes and timeouts are recorded, not fatal; the command fails only
for configuration errors or an unusable cache. Interrupted runs still write
their partial artifact and exit 130.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd)
			if err != nil {
				return err
			}
			opts.Common = common(workers)

			ctx, stop := signalContext(cmd)
			defer stop()

			return commands.Run(ctx, deps, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "run label used in artifact names, e.g. main or pr (required)")
	cmd.Flags().IntVar(&opts.Batches, "batches", 1, "total number of batches")
	cmd.Flags().IntVar(&opts.BatchIdx, "batchIdx", 0, "batch to run, in [0, batches)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent analyzer processes (default: settings)")
	cmd.Flags().StringVar(&opts.CommitStringFile, "commit-string-file", "", "commit string path (default: <output>/commit_string_<env>.txt)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	cmd.Flags().StringVar(&opts.TraceFile, "trace-file", "", "write OpenTelemetry spans to this file")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}
