// Package events provides event logging for primer batches and prepares.
// Events are stored in append-only JSONL files.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion of the event record format.
const SchemaVersion = "1.0"

// Event names.
const (
	BatchStarted   = "batch_started"
	TargetFinished = "target_finished"
	BatchFinished  = "batch_finished"
	FetchFinished  = "fetch_finished"
	CacheStale     = "cache_stale"
)

// Event represents a single line in an events file.
// This is the public contract for the events file format.
type Event struct {
	SchemaVersion string         `json:"schema_version"`
	Timestamp     string         `json:"timestamp"` // RFC3339 UTC
	RunID         string         `json:"run_id"`
	Event         string         `json:"event"`
	Data          map[string]any `json:"data,omitempty"`
}

// AppendEvent appends a single event to the file at path.
// The file is created lazily if it doesn't exist.
// Each event is written as a single JSON line followed by newline.
//
// Best-effort: errors are returned but callers should typically ignore them
// and continue with the main operation.
func AppendEvent(path string, e Event) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	// One write per line keeps lines intact under O_APPEND.
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Log appends events for one run to one file. Safe for concurrent use.
// A nil *Log or an empty Path discards events.
type Log struct {
	Path  string
	RunID string
	Now   func() time.Time

	mu sync.Mutex
}

// NewLog returns a Log writing to path.
func NewLog(path, runID string) *Log {
	return &Log{Path: path, RunID: runID, Now: time.Now}
}

// Emit appends one event. Errors are returned for callers that care; most
// ignore them.
func (l *Log) Emit(name string, data map[string]any) error {
	if l == nil || l.Path == "" {
		return nil
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return AppendEvent(l.Path, Event{
		SchemaVersion: SchemaVersion,
		Timestamp:     now().UTC().Format(time.RFC3339),
		RunID:         l.RunID,
		Event:         name,
		Data:          data,
	})
}

// BatchStartedData returns the data map for a batch_started event.
func BatchStartedData(runType, envID string, batches, batchIdx int, targets []string) map[string]any {
	return map[string]any{
		"run_type":  runType,
		"env_id":    envID,
		"batches":   batches,
		"batch_idx": batchIdx,
		"targets":   targets,
	}
}

// TargetFinishedData returns the data map for a target_finished event.
// reason is omitted when empty and bounded to 512 bytes.
func TargetFinishedData(target, status string, exitCode *int, durationMS int64, reason string) map[string]any {
	data := map[string]any{
		"target":      target,
		"status":      status,
		"duration_ms": durationMS,
	}
	if exitCode != nil {
		data["exit_code"] = *exitCode
	}
	if reason != "" {
		data["reason"] = truncate(reason, maxReasonLen)
	}
	return data
}

// BatchFinishedData returns the data map for a batch_finished event.
func BatchFinishedData(counts map[string]int, cancelled bool, durationMS int64, artifactPath string) map[string]any {
	return map[string]any{
		"counts":        counts,
		"cancelled":     cancelled,
		"duration_ms":   durationMS,
		"artifact_path": artifactPath,
	}
}

// FetchFinishedData returns the data map for a fetch_finished event.
// errorCode is omitted when empty.
func FetchFinishedData(target, revision, commit string, cached bool, attempts int, durationMS int64, errorCode string) map[string]any {
	data := map[string]any{
		"target":      target,
		"revision":    revision,
		"cached":      cached,
		"attempts":    attempts,
		"duration_ms": durationMS,
		"ok":          errorCode == "",
	}
	if commit != "" {
		data["commit"] = commit
	}
	if errorCode != "" {
		data["error_code"] = errorCode
	}
	return data
}

// CacheStaleData returns the data map for a cache_stale event.
func CacheStaleData(expectedKey, manifestKey string) map[string]any {
	return map[string]any{
		"expected_key": expectedKey,
		"manifest_key": manifestKey,
	}
}

const maxReasonLen = 512

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
