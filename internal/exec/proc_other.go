//go:build !unix

package exec

import osexec "os/exec"

// SetProcessGroup is a no-op where process groups are unavailable.
func SetProcessGroup(cmd *osexec.Cmd) {}

// InterruptProcessGroup kills the process; there is no portable SIGINT.
func InterruptProcessGroup(cmd *osexec.Cmd) error {
	return KillProcessGroup(cmd)
}

// KillProcessGroup kills the direct child process.
func KillProcessGroup(cmd *osexec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// SignalName always returns "" on platforms without POSIX signals.
func SignalName(state interface{ Sys() any }) string {
	return ""
}
