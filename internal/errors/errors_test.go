package errors

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(EUsage, "test message")

	if err.Error() != "E_USAGE: test message" {
		t.Errorf("Error() = %q, want %q", err.Error(), "E_USAGE: test message")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(EPersistFailed, "wrapped message", cause)

	if err.Error() != "E_PERSIST_FAILED: wrapped message" {
		t.Errorf("Error() = %q, want %q", err.Error(), "E_PERSIST_FAILED: wrapped message")
	}

	var pe *PrimerError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As failed")
	}
	if pe.Cause != cause {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil error", nil, ""},
		{"primer error", New(EUsage, "x"), EUsage},
		{"wrapped primer error", Wrap(EFetchFailed, "y", errors.New("z")), EFetchFailed},
		{"fmt-wrapped primer error", fmt.Errorf("ctx: %w", New(EInvalidBatch, "b")), EInvalidBatch},
		{"non-primer error", errors.New("plain"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetCode(tt.err)
			if got != tt.want {
				t.Errorf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"E_USAGE", New(EUsage, "x"), 2},
		{"E_INVALID_BATCH", New(EInvalidBatch, "x"), 2},
		{"E_INVALID_REGISTRY", New(EInvalidRegistry, "x"), 2},
		{"E_INVALID_CONFIG", New(EInvalidConfig, "x"), 2},
		{"E_CANCELLED", New(ECancelled, "x"), 130},
		{"E_CACHE_KEY_MISSING", New(ECacheKeyMissing, "x"), 1},
		{"non-primer error", errors.New("x"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExitCode(tt.err)
			if got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"E_USAGE", New(EUsage, "bad args"), "error_code: E_USAGE\nbad args\n"},
		{"E_CACHE_KEY_CORRUPT", New(ECacheKeyCorrupt, "bad key"), "error_code: E_CACHE_KEY_CORRUPT\nbad key\n"},
		{"plain", errors.New("plain"), "plain\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Print(&buf, tt.err)
			got := buf.String()
			if got != tt.want {
				t.Errorf("Print() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewWithDetails_DefensiveCopy(t *testing.T) {
	details := map[string]string{"key": "value"}
	err := NewWithDetails(EUsage, "test", details)

	details["key"] = "modified"

	var pe *PrimerError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As failed")
	}
	if pe.Details["key"] != "value" {
		t.Errorf("Details should be copied")
	}
}

func TestNewWithDetails_NilDetails(t *testing.T) {
	err := NewWithDetails(EUsage, "test", map[string]string{})

	pe, ok := AsPrimerError(err)
	if !ok {
		t.Fatal("AsPrimerError failed")
	}
	if pe.Details != nil {
		t.Errorf("Details should be nil, got %v", pe.Details)
	}
}

func TestAsPrimerError(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		pe, ok := AsPrimerError(New(EUsage, "test"))
		if !ok || pe.Code != EUsage {
			t.Errorf("AsPrimerError() = %v, %v", pe, ok)
		}
	})

	t.Run("non primer error", func(t *testing.T) {
		pe, ok := AsPrimerError(errors.New("regular error"))
		if ok || pe != nil {
			t.Error("should return nil, false for non-PrimerError")
		}
	})

	t.Run("nil error", func(t *testing.T) {
		pe, ok := AsPrimerError(nil)
		if ok || pe != nil {
			t.Error("should return nil, false for nil")
		}
	})
}

func TestIsConfigError(t *testing.T) {
	for _, code := range []Code{EUsage, EInvalidConfig, EInvalidRegistry, ENoRegistry, EInvalidBatch, EInvalidName} {
		if !IsConfigError(New(code, "x")) {
			t.Errorf("%s should be a config error", code)
		}
	}
	for _, code := range []Code{EFetchFailed, ECacheKeyMissing, EArtifactWriteFailed, ECancelled} {
		if IsConfigError(New(code, "x")) {
			t.Errorf("%s should not be a config error", code)
		}
	}
}
