package analyzer

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	osexec "os/exec"
	"slices"
	"sync"
	"time"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/exec"
)

// Request describes one analyzer run.
type Request struct {
	Target core.Target

	// Dir is the materialized checkout; the analyzer runs with it as cwd.
	Dir string

	// Timeout bounds the run. Zero means only ctx bounds it.
	Timeout time.Duration
}

// Invoker runs the analyzer for one target. Invoke never fails: every
// problem, including cancellation, is expressed in the Outcome.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Outcome
}

// ProcessInvoker runs the analyzer as a subprocess in its own process
// group: Command + Args + target args + target paths.
type ProcessInvoker struct {
	Command []string
	Args    []string
	Env     map[string]string

	// Grace is how long a stopped analyzer gets between SIGINT and SIGKILL.
	Grace time.Duration

	// MaxOutputBytes bounds each captured stream.
	MaxOutputBytes int

	Classifier Classifier
}

var _ Invoker = (*ProcessInvoker)(nil)

// Argv returns the full command line for req.
func (p *ProcessInvoker) Argv(req Request) []string {
	argv := slices.Clone(p.Command)
	argv = append(argv, p.Args...)
	argv = append(argv, req.Target.Args...)
	return append(argv, req.Target.AnalysisPaths()...)
}

// Invoke runs the analyzer and classifies the result.
func (p *ProcessInvoker) Invoke(ctx context.Context, req Request) Outcome {
	raw := p.run(ctx, req)
	return p.Classifier.Classify(raw)
}

func (p *ProcessInvoker) run(ctx context.Context, req Request) Raw {
	raw := Raw{ExitCode: -1, Timeout: req.Timeout}
	if err := ctx.Err(); err != nil {
		raw.Cancelled = true
		return raw
	}

	argv := p.Argv(req)
	if len(p.Command) == 0 {
		raw.StartErr = stderrors.New("no analyzer command configured")
		return raw
	}

	cmd := osexec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = exec.MergeEnv(os.Environ(), p.Env)

	stdout := newBoundedBuffer(p.MaxOutputBytes)
	stderr := newBoundedBuffer(p.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	exec.SetProcessGroup(cmd)

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	grace := p.Grace
	if grace <= 0 {
		grace = exec.KillGrace
	}
	cmd.WaitDelay = grace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		raw.StartErr = err
		raw.Duration = time.Since(start)
		return raw
	}

	_, stopped := exec.WaitOrStop(runCtx, cmd, grace)
	raw.Duration = time.Since(start)

	if stopped {
		// The parent context decides whether this was our timeout or a
		// cancellation of the whole run.
		if ctx.Err() != nil {
			raw.Cancelled = true
		} else {
			raw.TimedOut = true
		}
		return raw
	}

	raw.Stdout, raw.Stderr = stdout.String(), stderr.String()
	raw.Truncated = stdout.Truncated() || stderr.Truncated()
	if ps := cmd.ProcessState; ps != nil {
		raw.Signal = exec.SignalName(ps)
		raw.ExitCode = ps.ExitCode()
	}
	return raw
}

// boundedBuffer keeps the first limit bytes written and drops the rest
// while still reporting full writes, so a chatty analyzer never blocks.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	if limit <= 0 {
		limit = 8 << 20
	}
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
