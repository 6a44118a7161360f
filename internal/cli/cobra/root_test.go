package cobra

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/NielsdaWheelz/primer/internal/errors"
)

// executeCmd runs the root command with the given args and returns stdout, stderr, and error.
func executeCmd(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	rootCmd := NewRootCmd()
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRoot_Help(t *testing.T) {
	for _, arg := range []string{"--help", "-h"} {
		t.Run(arg, func(t *testing.T) {
			stdout, _, err := executeCmd(arg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(stdout, "Available Commands") {
				t.Error("expected 'Available Commands' in help output")
			}
			for _, cmd := range []string{"prepare", "run", "compare", "doctor", "version"} {
				if !strings.Contains(stdout, cmd) {
					t.Errorf("expected '%s' command in help output", cmd)
				}
			}
		})
	}
}

func TestRoot_Version(t *testing.T) {
	for _, arg := range []string{"--version", "version"} {
		t.Run(arg, func(t *testing.T) {
			stdout, _, err := executeCmd(arg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(stdout, "primer") {
				t.Error("expected 'primer' in version output")
			}
		})
	}
}

func TestRoot_UnknownCommand(t *testing.T) {
	_, _, err := executeCmd("nonexistent")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' in error, got: %v", err)
	}
}

func TestPrepareCmd_RequiresOneMode(t *testing.T) {
	_, _, err := executeCmd("prepare")
	if errors.GetCode(err) != errors.EUsage {
		t.Fatalf("code = %q, want %q", errors.GetCode(err), errors.EUsage)
	}

	_, _, err = executeCmd("prepare", "--clone", "--make-commit-string")
	if err == nil {
		t.Fatal("expected error for conflicting modes")
	}
	if !strings.Contains(err.Error(), "none of the others can be") {
		t.Errorf("expected mutual exclusion error, got: %v", err)
	}
}

func TestRunCmd_Help(t *testing.T) {
	stdout, _, err := executeCmd("run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, flag := range []string{"--type", "--batches", "--batchIdx", "--workers", "--metrics-file", "--trace-file"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("expected '%s' in run help output", flag)
		}
	}
}

func TestRunCmd_RequiresType(t *testing.T) {
	_, _, err := executeCmd("run", "--batches", "2", "--batchIdx", "0")
	if err == nil {
		t.Fatal("expected error when --type is missing")
	}
	if !strings.Contains(err.Error(), `"type" not set`) {
		t.Errorf("expected required flag error, got: %v", err)
	}
}

func TestRunCmd_InvalidBatch(t *testing.T) {
	_, _, err := executeCmd("run", "--type", "pr", "--batches", "2", "--batchIdx", "5", "--log-format", "json")
	if errors.GetCode(err) != errors.EInvalidBatch {
		t.Fatalf("code = %q, want %q", errors.GetCode(err), errors.EInvalidBatch)
	}
	if errors.ExitCode(err) != 2 {
		t.Errorf("exit code = %d, want 2", errors.ExitCode(err))
	}
}

func TestRoot_UnknownLogFormat(t *testing.T) {
	_, _, err := executeCmd("doctor", "--log-format", "xml")
	if errors.GetCode(err) != errors.EUsage {
		t.Fatalf("code = %q, want %q", errors.GetCode(err), errors.EUsage)
	}
}

func TestPrepareCmd_CommitStringThroughFlags(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "targets.json")
	if err := os.WriteFile(registry, []byte(`{"version":1,"targets":[{"name":"astroid","url":"https://example.com/astroid.git","revision":"v3.0.1"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	settings := filepath.Join(dir, "primer.yaml")
	if err := os.WriteFile(settings, []byte("analyzer:\n  version: \"pylint 3.0.1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	common := []string{
		"--config", settings,
		"--registry", registry,
		"--output-dir", filepath.Join(dir, "out"),
		"--cache-dir", filepath.Join(dir, "cache"),
		"--env-id", "CPython 3.12",
		"--log-format", "json",
	}

	made, _, err := executeCmd(append([]string{"prepare", "--make-commit-string"}, common...)...)
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}\n$`).MatchString(made) {
		t.Fatalf("unexpected key output %q", made)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "commit_string_cpython-3.12.txt")); err != nil {
		t.Fatalf("commit string not persisted: %v", err)
	}

	read, _, err := executeCmd(append([]string{"prepare", "--read-commit-string"}, common...)...)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if read != made {
		t.Errorf("read %q, made %q", read, made)
	}
}
