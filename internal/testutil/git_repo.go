// Package testutil provides fixtures shared by primer tests.
package testutil

import (
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// GitEnv isolates git from the user's and system configuration.
var GitEnv = []string{
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_CONFIG_GLOBAL=" + os.DevNull,
	"GIT_AUTHOR_NAME=primer",
	"GIT_AUTHOR_EMAIL=primer@example.invalid",
	"GIT_COMMITTER_NAME=primer",
	"GIT_COMMITTER_EMAIL=primer@example.invalid",
	"GIT_TERMINAL_PROMPT=0",
}

// repoOverrideVars point git at a different repository than its working
// directory. Hooks running inside a git checkout export them.
var repoOverrideVars = []string{
	"GIT_DIR",
	"GIT_WORK_TREE",
	"GIT_COMMON_DIR",
	"GIT_INDEX_FILE",
	"GIT_OBJECT_DIRECTORY",
	"GIT_ALTERNATE_OBJECT_DIRECTORIES",
}

// UnsetGitEnv clears repoOverrideVars from the process environment, so
// fetches made by code under test (which inherits os.Environ) stay inside
// their temp directories.
func UnsetGitEnv() error {
	for _, name := range repoOverrideVars {
		if err := os.Unsetenv(name); err != nil {
			return fmt.Errorf("unset %s: %w", name, err)
		}
	}
	return nil
}

// RequireGit skips the test when git is not on PATH.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := osexec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	if err := UnsetGitEnv(); err != nil {
		t.Fatal(err)
	}
}

// Git runs git in dir and returns trimmed stdout. Fails the test on error.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := osexec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), GitEnv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// Repo is an upstream repository fixture that fetch tests clone from.
type Repo struct {
	t   testing.TB
	Dir string
}

// NewRepo initializes an empty repository that allows fetching any
// reachable sha (shallow fetches of an unadvertised commit need this).
func NewRepo(t testing.TB) *Repo {
	t.Helper()
	RequireGit(t)
	dir := filepath.Join(t.TempDir(), "upstream")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	Git(t, dir, "init", "-q", "-b", "main")
	Git(t, dir, "config", "uploadpack.allowAnySHA1InWant", "true")
	Git(t, dir, "config", "uploadpack.allowReachableSHA1InWant", "true")
	return &Repo{t: t, Dir: dir}
}

// URL returns a file:// URL usable as a target source.
func (r *Repo) URL() string {
	return "file://" + r.Dir
}

// Commit writes files (path -> content) and commits them, returning the
// new commit sha.
func (r *Repo) Commit(msg string, files map[string]string) string {
	r.t.Helper()
	for name, content := range files {
		p := filepath.Join(r.Dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			r.t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			r.t.Fatal(err)
		}
	}
	Git(r.t, r.Dir, "add", "-A")
	Git(r.t, r.Dir, "commit", "-q", "--allow-empty", "-m", msg)
	return Git(r.t, r.Dir, "rev-parse", "HEAD")
}

// Tag creates a lightweight tag at HEAD.
func (r *Repo) Tag(name string) {
	r.t.Helper()
	Git(r.t, r.Dir, "tag", name)
}
