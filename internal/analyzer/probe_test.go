package analyzer

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/exec"
)

type fakeRunner struct {
	results map[string]exec.CmdResult
	missing map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, opts exec.RunOpts) (exec.CmdResult, error) {
	res, ok := f.results[name]
	if !ok {
		return exec.CmdResult{}, stderrors.New("exec: not found")
	}
	return res, nil
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if f.missing[file] {
		return "", stderrors.New("not found")
	}
	return "/usr/bin/" + file, nil
}

func TestResolveVersion(t *testing.T) {
	runner := &fakeRunner{results: map[string]exec.CmdResult{
		"pylint": {Stdout: "pylint 3.0.1\nastroid 3.0.1\nPython 3.12.1 (main)\n"},
		"broken": {ExitCode: 2, Stderr: "usage"},
		"silent": {},
	}}
	ctx := context.Background()

	v, err := ResolveVersion(ctx, runner, "", []string{"pylint", "--version"})
	require.NoError(t, err)
	assert.Equal(t, "pylint 3.0.1; astroid 3.0.1; Python 3.12.1 (main)", v)

	v, err = ResolveVersion(ctx, runner, "pinned", []string{"never-run"})
	require.NoError(t, err)
	assert.Equal(t, "pinned", v)

	for _, cmd := range [][]string{{"broken"}, {"silent"}, {"absent"}, nil} {
		_, err := ResolveVersion(ctx, runner, "", cmd)
		require.Error(t, err, "%v", cmd)
		assert.Equal(t, errors.EAnalyzerVersionFailed, errors.GetCode(err))
	}
}

func TestResolveEnvID(t *testing.T) {
	runner := &fakeRunner{results: map[string]exec.CmdResult{"python3": {Stdout: "3.12.1\n"}}}

	id, err := ResolveEnvID(context.Background(), runner, "", []string{"python3", "-c", "..."})
	require.NoError(t, err)
	assert.Equal(t, "3.12.1", id)

	_, err = ResolveEnvID(context.Background(), runner, "", []string{"python2"})
	require.Error(t, err)
	assert.Equal(t, errors.EEnvIDFailed, errors.GetCode(err))
}

func TestCheckInstalled(t *testing.T) {
	runner := &fakeRunner{missing: map[string]bool{"pylint": true}}

	_, err := CheckInstalled(runner, []string{"pylint"})
	assert.Equal(t, errors.EAnalyzerNotFound, errors.GetCode(err))

	_, err = CheckInstalled(runner, nil)
	assert.Equal(t, errors.EAnalyzerNotConfigured, errors.GetCode(err))

	path, err := CheckInstalled(runner, []string{"python"})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python", path)
}
