// Package cobra provides the Cobra-based CLI command tree for primer.
package cobra

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/primer/internal/commands"
	"github.com/NielsdaWheelz/primer/internal/config"
	"github.com/NielsdaWheelz/primer/internal/exec"
	"github.com/NielsdaWheelz/primer/internal/fs"
	"github.com/NielsdaWheelz/primer/internal/logging"
	"github.com/NielsdaWheelz/primer/internal/version"
)

// GlobalOpts holds global options parsed before subcommand dispatch.
type GlobalOpts struct {
	Verbose   bool
	LogFormat string

	ConfigPath string
	CacheDir   string
	OutputDir  string
	Registry   string
	EnvID      string
}

// globalOpts stores the parsed global options for access by subcommands.
var globalOpts GlobalOpts

// GetGlobalOpts returns the parsed global options.
func GetGlobalOpts() GlobalOpts {
	return globalOpts
}

// NewRootCmd creates the root cobra command for primer.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "primer",
		Short: "Regression-corpus runner for a static analyzer",
		Long: `primer - regression-corpus runner for a static analyzer

primer runs the analyzer against a pinned corpus of real-world codebases to
catch new crashes and changed messages before release. prepare acquires and
caches the corpus; run analyzes one batch of it; compare diffs two runs.`,
		Version:       version.FullVersion(),
		SilenceErrors: true, // errors are printed in main.go
		SilenceUsage:  true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&globalOpts.Verbose, "verbose", false, "debug logging and detailed error context")
	pf.StringVar(&globalOpts.LogFormat, "log-format", logging.FormatAuto, "log format: auto, text or json")
	pf.StringVar(&globalOpts.ConfigPath, "config", "", "settings file (default: $"+config.EnvConfig+" or ./"+config.DefaultSettingsFile+")")
	pf.StringVar(&globalOpts.CacheDir, "cache-dir", "", "corpus cache directory")
	pf.StringVar(&globalOpts.OutputDir, "output-dir", "", "artifact output directory")
	pf.StringVar(&globalOpts.Registry, "registry", "", "corpus registry file (.json, .yaml)")
	pf.StringVar(&globalOpts.EnvID, "env-id", "", "environment id (default: probed from the interpreter)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newPrepareCmd(),
		newRunCmd(),
		newCompareCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
// This is the main entry point from main.go.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}

// newDeps builds production dependencies for cmd, logging to its stderr.
func newDeps(cmd *cobra.Command) (commands.Deps, error) {
	logger, err := logging.New(cmd.ErrOrStderr(), logging.Options{
		Format:  globalOpts.LogFormat,
		Verbose: globalOpts.Verbose,
	})
	if err != nil {
		return commands.Deps{}, err
	}
	return commands.Deps{
		Runner: exec.NewRealRunner(),
		FS:     fs.NewRealFS(),
		Getenv: os.Getenv,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Logger: logger,
	}, nil
}

// common returns the shared command options from global flags. workers is
// the --workers flag of commands that have one, zero otherwise.
func common(workers int) commands.Common {
	return commands.Common{
		ConfigPath: globalOpts.ConfigPath,
		Overrides: config.Overrides{
			CacheDir:  globalOpts.CacheDir,
			OutputDir: globalOpts.OutputDir,
			Registry:  globalOpts.Registry,
			EnvID:     globalOpts.EnvID,
			Workers:   workers,
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM, which stops every
// in-flight git and analyzer subprocess.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
