//go:build unix

package analyzer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/store"
)

func shInvoker(script string) *ProcessInvoker {
	return &ProcessInvoker{
		Command:        []string{"sh", "-c", script, "analyzer"},
		Grace:          100 * time.Millisecond,
		MaxOutputBytes: 1 << 20,
		Classifier:     pylintClassifier(),
	}
}

func request(t *testing.T) Request {
	return Request{
		Target:  core.Target{Name: "demo", Revision: "v1"},
		Dir:     t.TempDir(),
		Timeout: 10 * time.Second,
	}
}

func TestProcessInvoker_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantStatus store.Status
		wantStdout string
		wantSignal string
	}{
		{"clean", "exit 0", store.StatusClean, "", ""},
		{"findings", "echo 'a.py:1: [C0114] missing'; exit 16", store.StatusFindings, "a.py:1: [C0114] missing\n", ""},
		{"fatal exit", "echo boom >&2; exit 1", store.StatusCrashed, "", ""},
		{"traceback", "echo 'Traceback (most recent call last):' >&2; exit 2", store.StatusCrashed, "", ""},
		{"segfault", "kill -SEGV $$", store.StatusCrashed, "", "SIGSEGV"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := shInvoker(tt.script).Invoke(context.Background(), request(t))
			assert.Equal(t, tt.wantStatus, o.Status, "reason: %s", o.Reason)
			assert.Equal(t, tt.wantStdout, o.Stdout)
			assert.Equal(t, tt.wantSignal, o.Signal)
		})
	}
}

func TestProcessInvoker_TimeoutKillsGroupAndDropsOutput(t *testing.T) {
	inv := shInvoker("echo partial; sleep 30 & wait")
	req := request(t)
	req.Timeout = 200 * time.Millisecond

	start := time.Now()
	o := inv.Invoke(context.Background(), req)

	assert.Equal(t, store.StatusTimedOut, o.Status)
	assert.Empty(t, o.Stdout)
	assert.Nil(t, o.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessInvoker_TimeoutKillsWorkersIgnoringInterrupt(t *testing.T) {
	// The leader exits on SIGINT; the worker ignores it and keeps stdout open.
	inv := shInvoker(`sh -c 'trap "" INT; exec sleep 20' & wait`)
	req := request(t)
	req.Timeout = 200 * time.Millisecond

	start := time.Now()
	o := inv.Invoke(context.Background(), req)

	assert.Equal(t, store.StatusTimedOut, o.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessInvoker_CancelIsSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	o := shInvoker("sleep 30").Invoke(ctx, request(t))
	assert.Equal(t, store.StatusSkipped, o.Status)

	o = shInvoker("exit 0").Invoke(ctx, request(t))
	assert.Equal(t, store.StatusSkipped, o.Status, "already-cancelled context never starts the analyzer")
}

func TestProcessInvoker_StartFailure(t *testing.T) {
	inv := &ProcessInvoker{Command: []string{"definitely-not-an-analyzer-xyz"}, Classifier: pylintClassifier()}
	o := inv.Invoke(context.Background(), request(t))
	assert.Equal(t, store.StatusCrashed, o.Status)
	assert.True(t, strings.Contains(o.Reason, "failed to start"))
}

func TestProcessInvoker_ArgvAndWorkingDir(t *testing.T) {
	inv := shInvoker(`pwd; for a in "$@"; do echo "$a"; done; exit 4`)
	inv.Args = []string{"--score=n"}

	req := request(t)
	req.Target.Args = []string{"--disable=fixme"}
	req.Target.Paths = []string{"src", "lib"}

	o := inv.Invoke(context.Background(), req)
	require.Equal(t, store.StatusFindings, o.Status)

	lines := strings.Split(strings.TrimSpace(o.Stdout), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, filepath.Base(req.Dir), filepath.Base(lines[0]))
	assert.Equal(t, []string{"--score=n", "--disable=fixme", "src", "lib"}, lines[1:])

	assert.Equal(t, []string{"sh", "-c", inv.Command[2], "analyzer", "--score=n", "--disable=fixme", "src", "lib"}, inv.Argv(req))
}

func TestProcessInvoker_Env(t *testing.T) {
	inv := shInvoker(`echo "$PRIMER_ANALYZER_FLAG"; exit 4`)
	inv.Env = map[string]string{"PRIMER_ANALYZER_FLAG": "on"}
	o := inv.Invoke(context.Background(), request(t))
	assert.Equal(t, "on\n", o.Stdout)
}

func TestProcessInvoker_OutputBounded(t *testing.T) {
	inv := shInvoker(`i=0; while [ $i -lt 2000 ]; do echo "line $i"; i=$((i+1)); done; exit 4`)
	inv.MaxOutputBytes = 1024

	o := inv.Invoke(context.Background(), request(t))
	assert.Equal(t, store.StatusFindings, o.Status)
	assert.Len(t, o.Stdout, 1024)
	assert.True(t, o.Truncated)
}

func TestBoundedBuffer(t *testing.T) {
	b := newBoundedBuffer(4)
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", b.String())
	assert.True(t, b.Truncated())

	n, _ = b.Write([]byte("gh"))
	assert.Equal(t, 2, n)
	assert.Equal(t, "abcd", b.String())
}
