//go:build unix

package exec

import (
	osexec "os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetProcessGroup starts cmd as the leader of a new process group.
func SetProcessGroup(cmd *osexec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// InterruptProcessGroup sends SIGINT to the command's process group.
func InterruptProcessGroup(cmd *osexec.Cmd) error {
	return signalGroup(cmd, unix.SIGINT)
}

// KillProcessGroup sends SIGKILL to the command's process group.
func KillProcessGroup(cmd *osexec.Cmd) error {
	return signalGroup(cmd, unix.SIGKILL)
}

func signalGroup(cmd *osexec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil || cmd.Process.Pid <= 0 {
		return nil
	}
	// Setpgid makes the leader's pid the group id. The group outlives a
	// leader that already exited, so address it directly.
	err := unix.Kill(-cmd.Process.Pid, sig)
	if err == unix.ESRCH {
		return nil
	}
	return err
}

// SignalName returns the conventional name ("SIGKILL") for a wait status
// that ended by signal, or "" otherwise.
func SignalName(state interface{ Sys() any }) string {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(ws.Signal())
}
