package analyzer

import (
	"context"
	"strconv"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/exec"
)

// ResolveVersion returns literal when set, otherwise the trimmed stdout of
// command with lines joined by "; ". Returns E_ANALYZER_VERSION_FAILED.
func ResolveVersion(ctx context.Context, runner exec.CommandRunner, literal string, command []string) (string, error) {
	if literal != "" {
		return literal, nil
	}
	out, err := probe(ctx, runner, command)
	if err != nil {
		return "", errors.WrapWithDetails(errors.EAnalyzerVersionFailed, "failed to determine analyzer version", err,
			map[string]string{"command": strings.Join(command, " ")})
	}
	return out, nil
}

// ResolveEnvID returns literal when set, otherwise the probed output of
// command. Returns E_ENV_ID_FAILED.
func ResolveEnvID(ctx context.Context, runner exec.CommandRunner, literal string, command []string) (string, error) {
	if literal != "" {
		return literal, nil
	}
	out, err := probe(ctx, runner, command)
	if err != nil {
		return "", errors.WrapWithDetails(errors.EEnvIDFailed, "failed to determine environment id", err,
			map[string]string{"command": strings.Join(command, " ")})
	}
	return out, nil
}

// CheckInstalled resolves the analyzer executable on PATH.
// Returns E_ANALYZER_NOT_CONFIGURED or E_ANALYZER_NOT_FOUND.
func CheckInstalled(runner exec.CommandRunner, command []string) (string, error) {
	if len(command) == 0 || command[0] == "" {
		return "", errors.New(errors.EAnalyzerNotConfigured, "analyzer command is empty")
	}
	path, err := runner.LookPath(command[0])
	if err != nil {
		return "", errors.WrapWithDetails(errors.EAnalyzerNotFound, "analyzer executable not found", err,
			map[string]string{"command": command[0]})
	}
	return path, nil
}

func probe(ctx context.Context, runner exec.CommandRunner, command []string) (string, error) {
	if len(command) == 0 {
		return "", errors.New(errors.EAnalyzerNotConfigured, "no command configured")
	}
	res, err := runner.Run(ctx, command[0], command[1:], exec.RunOpts{})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", errors.New(errors.EInternal, "command exited "+strconv.Itoa(res.ExitCode)+": "+strings.TrimSpace(res.Stderr))
	}

	var lines []string
	for _, l := range strings.Split(res.Stdout, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return "", errors.New(errors.EInternal, "command printed nothing")
	}
	return strings.Join(lines, "; "), nil
}
