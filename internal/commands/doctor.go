package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/analyzer"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/exec"
	"github.com/NielsdaWheelz/primer/internal/render"
	"github.com/NielsdaWheelz/primer/internal/tty"
)

// DoctorReport holds all the data for doctor output.
type DoctorReport struct {
	ConfigPath string

	GitVersion   string
	AnalyzerPath string

	AnalyzerVersion string
	EnvID           string
	CacheKey        string

	Targets int
	CI      bool
}

// Doctor implements `primer doctor`.
// Verifies git and the analyzer are installed, loads configuration and the
// registry, and prints what a run would use.
func Doctor(ctx context.Context, deps Deps, opts Common) error {
	gitVersion, err := checkGit(ctx, deps.Runner)
	if err != nil {
		return err
	}

	s, err := openSession(deps, opts)
	if err != nil {
		return err
	}

	analyzerPath, err := analyzer.CheckInstalled(deps.Runner, s.settings.Analyzer.Command)
	if err != nil {
		return err
	}
	id, err := s.resolveIdentity(ctx)
	if err != nil {
		return err
	}

	r := DoctorReport{
		ConfigPath:      s.configPath,
		GitVersion:      gitVersion,
		AnalyzerPath:    analyzerPath,
		AnalyzerVersion: id.AnalyzerVersion,
		EnvID:           id.EnvID,
		CacheKey:        s.cacheKey(id).String(),
		Targets:         s.registry.Len(),
		CI:              tty.IsCI(deps.getenv),
	}

	configPath := r.ConfigPath
	if configPath == "" {
		configPath = "(defaults)"
	}
	pairs := [][2]string{
		{"config", configPath},
		{"git_version", r.GitVersion},
		{"analyzer_path", r.AnalyzerPath},
		{"analyzer_version", r.AnalyzerVersion},
		{"env_id", r.EnvID},
		{"targets", strconv.Itoa(r.Targets)},
		{"cache_key", r.CacheKey},
		{"ci", strconv.FormatBool(r.CI)},
	}
	pairs = append(pairs, s.settings.Describe()...)
	pairs = append(pairs, [2]string{"status", "ok"})
	render.WriteKeyValues(deps.Stdout, pairs)
	return nil
}

func checkGit(ctx context.Context, cr exec.CommandRunner) (string, error) {
	if _, err := cr.LookPath("git"); err != nil {
		return "", errors.Wrap(errors.EGitNotInstalled, "git not found on PATH", err)
	}
	res, err := cr.Run(ctx, "git", []string{"--version"}, exec.RunOpts{})
	if err != nil || res.ExitCode != 0 {
		return "", errors.Wrap(errors.EGitNotInstalled, "git --version failed", err)
	}
	return strings.TrimPrefix(strings.TrimSpace(res.Stdout), "git version "), nil
}
