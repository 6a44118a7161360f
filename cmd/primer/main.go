// Command primer prepares and runs the pylint regression corpus.
package main

import (
	"os"

	"github.com/NielsdaWheelz/primer/internal/cli/cobra"
	"github.com/NielsdaWheelz/primer/internal/errors"
)

func main() {
	err := cobra.Execute(os.Stdout, os.Stderr)
	if err != nil {
		opts := errors.PrintOptions{
			Verbose: cobra.GetGlobalOpts().Verbose,
		}
		errors.PrintWithOptions(os.Stderr, err, opts)
		os.Exit(errors.ExitCode(err))
	}
}
