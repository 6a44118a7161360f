package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/primer/internal/commands"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites and show resolved settings",
		Long: `Check prerequisites and show resolved settings.
Verifies git and the analyzer are on PATH, loads the settings and registry,
and prints the analyzer version, environment id and cache key a run would use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newDeps(cmd)
			if err != nil {
				return err
			}
			return commands.Doctor(cmd.Context(), deps, common(0))
		},
	}

	return cmd
}
