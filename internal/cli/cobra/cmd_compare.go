package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/primer/internal/commands"
)

func newCompareCmd() *cobra.Command {
	var opts commands.CompareOpts

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the artifacts of two run types as markdown",
		Long: `Compare the artifacts of two run types as markdown.
Loads every batch artifact of --base-type and --pr-type for the environment
and reports new crashes and timeouts, fixed ones, and changed messages.
Differences never fail the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd)
			if err != nil {
				return err
			}
			opts.Common = common(0)
			return commands.Compare(cmd.Context(), deps, opts)
		},
	}

	cmd.Flags().StringVar(&opts.BaseType, "base-type", "main", "baseline run type")
	cmd.Flags().StringVar(&opts.PRType, "pr-type", "pr", "candidate run type")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write markdown to this file instead of stdout")
	cmd.Flags().IntVar(&opts.MaxLines, "max-lines", 0, "lines shown per target (default 20)")

	return cmd
}
