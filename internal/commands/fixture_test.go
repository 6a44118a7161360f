package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/primer/internal/analyzer"
	"github.com/NielsdaWheelz/primer/internal/exec"
	"github.com/NielsdaWheelz/primer/internal/fs"
	"github.com/NielsdaWheelz/primer/internal/logging"
	"github.com/NielsdaWheelz/primer/internal/store"
)

// fixture is a self-contained primer workspace: settings, registry, cache
// and output directories under one temp dir.
type fixture struct {
	t      *testing.T
	dir    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	deps   Deps
	common Common
}

type targetSpec struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Revision string `json:"revision"`
}

const settingsTemplate = `cache_dir: {{dir}}/cache
output_dir: {{dir}}/out
registry: {{dir}}/registry.json
analyzer:
  command: [pylint]
  version: "pylint 3.0.1"
  timeout: 1m
  workers: 2
environment:
  id: "3.12.1"
fetch:
  workers: 2
  attempts: 1
  initial_backoff: 1ms
  max_backoff: 1ms
  timeout: 1m
  rate: 0
  depth: 1
`

func newFixture(t *testing.T, targets ...targetSpec) *fixture {
	t.Helper()
	dir := t.TempDir()

	settings := strings.ReplaceAll(settingsTemplate, "{{dir}}", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "primer.yaml"), []byte(settings), 0o644))

	f := &fixture{
		t:      t,
		dir:    dir,
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		common: Common{ConfigPath: filepath.Join(dir, "primer.yaml")},
	}
	f.writeRegistry(targets...)
	f.deps = Deps{
		Runner: exec.NewRealRunner(),
		FS:     fs.NewRealFS(),
		Getenv: func(string) string { return "" },
		Stdout: f.stdout,
		Stderr: f.stderr,
		Logger: logging.Discard(),
	}
	return f
}

func (f *fixture) writeRegistry(targets ...targetSpec) {
	f.t.Helper()
	if targets == nil {
		targets = []targetSpec{}
	}
	data, err := json.Marshal(map[string]any{"version": 1, "targets": targets})
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(filepath.Join(f.dir, "registry.json"), data, 0o644))
}

func (f *fixture) store() *store.Store {
	return store.NewStore(filepath.Join(f.dir, "cache"), filepath.Join(f.dir, "out"))
}

func (f *fixture) prepare() PrepareOpts {
	return PrepareOpts{Common: f.common}
}

func (f *fixture) reset() {
	f.stdout.Reset()
	f.stderr.Reset()
}

// scriptedInvoker returns outcomes keyed by target name and records which
// directories it was asked to analyze.
type scriptedInvoker struct {
	outcomes map[string]analyzer.Outcome
	block    map[string]bool

	mu   sync.Mutex
	dirs map[string]string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req analyzer.Request) analyzer.Outcome {
	s.mu.Lock()
	if s.dirs == nil {
		s.dirs = map[string]string{}
	}
	s.dirs[req.Target.Name] = req.Dir
	s.mu.Unlock()

	if s.block[req.Target.Name] {
		<-ctx.Done()
		return analyzer.Outcome{Status: store.StatusSkipped, Reason: "run cancelled"}
	}
	if o, ok := s.outcomes[req.Target.Name]; ok {
		return o
	}
	code := 0
	return analyzer.Outcome{Status: store.StatusClean, ExitCode: &code, Duration: 5 * time.Millisecond}
}
