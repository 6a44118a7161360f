// Package version reports the primer build version.
package version

import "runtime/debug"

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

// FullVersion returns "vX.Y.Z (commit <sha>)". Binaries built with
// `go install` and no ldflags fall back to the module version and VCS
// revision recorded by the toolchain.
func FullVersion() string {
	v, c := Version, Commit
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			if c == "" {
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" && len(s.Value) >= 12 {
						c = s.Value[:12]
					}
				}
			}
		}
	}
	if c != "" {
		return v + " (commit " + c + ")"
	}
	return v
}
