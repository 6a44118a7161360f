// Package errors defines the stable error code system for primer.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract: CI scripts match on these.
const (
	EUsage    Code = "E_USAGE"
	EInternal Code = "E_INTERNAL"

	// Configuration errors (fatal, never retried)
	EInvalidConfig   Code = "E_INVALID_CONFIG"
	EInvalidRegistry Code = "E_INVALID_REGISTRY"
	ENoRegistry      Code = "E_NO_REGISTRY"
	EInvalidBatch    Code = "E_INVALID_BATCH" // batch count/index out of range
	EInvalidName     Code = "E_INVALID_NAME"  // target name does not match validation rules

	// Cache key handoff
	ECacheKeyMissing Code = "E_CACHE_KEY_MISSING" // persisted commit string not found
	ECacheKeyCorrupt Code = "E_CACHE_KEY_CORRUPT" // persisted commit string unreadable or malformed
	ECacheUnreadable Code = "E_CACHE_UNREADABLE"  // corpus cache directory cannot be read

	// Tooling/prerequisites
	EGitNotInstalled        Code = "E_GIT_NOT_INSTALLED"
	EAnalyzerNotFound       Code = "E_ANALYZER_NOT_FOUND"
	EAnalyzerVersionFailed  Code = "E_ANALYZER_VERSION_FAILED"
	EEnvIDFailed            Code = "E_ENV_ID_FAILED"
	EAnalyzerNotConfigured  Code = "E_ANALYZER_NOT_CONFIGURED"
	EEnvironmentUnspecified Code = "E_ENVIRONMENT_UNSPECIFIED"

	// Corpus fetch (only surfaced for a single target; never aborts a clone)
	EFetchFailed      Code = "E_FETCH_FAILED"
	ERevisionMismatch Code = "E_REVISION_MISMATCH" // fetched commit differs from pinned full sha

	// Persistence
	EPersistFailed       Code = "E_PERSIST_FAILED"
	EArtifactWriteFailed Code = "E_ARTIFACT_WRITE_FAILED"
	EArtifactInvalid     Code = "E_ARTIFACT_INVALID"
	EArtifactNotFound    Code = "E_ARTIFACT_NOT_FOUND"

	// Lifecycle
	ECancelled Code = "E_CANCELLED" // superseded or interrupted
)

// PrimerError is the standard error type for primer errors.
type PrimerError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *PrimerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PrimerError) Unwrap() error {
	return e.Cause
}

// New creates a new PrimerError with the given code and message.
func New(code Code, msg string) error {
	return &PrimerError{Code: code, Msg: msg}
}

// NewWithDetails creates a new PrimerError with code, message, and details.
// Details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &PrimerError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new PrimerError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &PrimerError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new PrimerError wrapping an underlying error with details.
// Details map is copied (nil if empty).
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &PrimerError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not a PrimerError.
func GetCode(err error) Code {
	var pe *PrimerError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// AsPrimerError returns (*PrimerError, true) if err is or wraps a PrimerError.
func AsPrimerError(err error) (*PrimerError, bool) {
	var pe *PrimerError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// IsConfigError reports whether err belongs to the configuration category:
// fatal, reported with usage exit status, never retried.
func IsConfigError(err error) bool {
	switch GetCode(err) {
	case EUsage, EInvalidConfig, EInvalidRegistry, ENoRegistry, EInvalidBatch, EInvalidName:
		return true
	}
	return false
}

// ExitCode returns the appropriate exit code for an error.
// Returns 0 if err is nil, 2 for configuration errors, 130 for cancellation,
// 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsConfigError(err) {
		return 2
	}
	if GetCode(err) == ECancelled {
		return 130
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var pe *PrimerError
	if errors.As(err, &pe) {
		_, _ = fmt.Fprintf(w, "error_code: %s\n", pe.Code)
		_, _ = fmt.Fprintln(w, pe.Msg)
	} else {
		_, _ = fmt.Fprintln(w, err.Error())
	}
}
