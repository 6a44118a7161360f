// Package tty provides terminal detection for primer commands.
package tty

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY returns true if the given file is a terminal (including Cygwin/MSYS
// pseudo-terminals).
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsCI reports whether primer appears to run under a CI system, where
// output is collected as logs rather than read live.
func IsCI(getenv func(string) string) bool {
	return getenv("CI") != "" || getenv("GITHUB_ACTIONS") != ""
}
