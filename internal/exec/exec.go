// Package exec wraps subprocess execution for primer.
//
// Every subprocess primer starts (git for corpus fetches, the analyzer for
// runs) is placed in its own process group so that a timeout or a
// superseded run can stop the whole tree, not just the direct child.
package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	osexec "os/exec"
	"time"
)

// RunOpts configures a single command execution.
type RunOpts struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds variables layered over the parent environment.
	Env map[string]string
}

// CmdResult holds the captured outcome of a command that ran to completion.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs external commands. A non-zero exit is reported through
// CmdResult.ExitCode, not as an error; errors mean the command could not be
// started or was cancelled.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error)
	LookPath(file string) (string, error)
}

// KillGrace is how long a cancelled command may take to exit after SIGINT
// before the process group is killed.
const KillGrace = 3 * time.Second

// RealRunner executes commands on the host.
type RealRunner struct{}

// NewRealRunner returns a CommandRunner backed by os/exec.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// Run executes name with args and captures stdout and stderr.
// On context cancellation the process group is stopped and ctx.Err() is returned.
func (r *RealRunner) Run(ctx context.Context, name string, args []string, opts RunOpts) (CmdResult, error) {
	cmd := osexec.Command(name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = MergeEnv(os.Environ(), opts.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	SetProcessGroup(cmd)
	cmd.WaitDelay = KillGrace
	if err := cmd.Start(); err != nil {
		return CmdResult{}, err
	}

	waitErr, cancelled := WaitOrStop(ctx, cmd, KillGrace)

	result := CmdResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if cancelled {
		result.ExitCode = -1
		return result, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *osexec.ExitError
		if stderrors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, waitErr
	}
	return result, nil
}

// LookPath resolves file on PATH.
func (r *RealRunner) LookPath(file string) (string, error) {
	return osexec.LookPath(file)
}

// WaitOrStop waits for a started command. If ctx ends first, the process
// group receives SIGINT, then SIGKILL after grace, and cancelled is true.
// Group members that outlive the leader are killed either way.
//
// cmd.WaitDelay should be set before Start so a descendant holding the
// output pipes open cannot block Wait indefinitely.
func WaitOrStop(ctx context.Context, cmd *osexec.Cmd, grace time.Duration) (waitErr error, cancelled bool) {
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return ignoreWaitDelay(err), false
	case <-ctx.Done():
	}

	_ = InterruptProcessGroup(cmd)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		_ = KillProcessGroup(cmd)
		return ignoreWaitDelay(err), true
	case <-timer.C:
	}
	_ = KillProcessGroup(cmd)
	return ignoreWaitDelay(<-done), true
}

// ignoreWaitDelay drops osexec.ErrWaitDelay: the process itself exited
// cleanly and only a descendant kept the pipes open.
func ignoreWaitDelay(err error) error {
	if stderrors.Is(err, osexec.ErrWaitDelay) {
		return nil
	}
	return err
}

// MergeEnv returns base with overrides applied. Later keys win.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key = kv[:i]
				break
			}
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}
