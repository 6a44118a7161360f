package store

// Status classifies the outcome of analyzing one target.
type Status string

const (
	// StatusClean: the analyzer completed and reported nothing.
	StatusClean Status = "clean"

	// StatusFindings: the analyzer completed and reported diagnostics.
	StatusFindings Status = "findings"

	// StatusCrashed: the analyzer terminated abnormally.
	StatusCrashed Status = "crashed"

	// StatusTimedOut: the analyzer exceeded its timeout and was killed.
	StatusTimedOut Status = "timed-out"

	// StatusSkipped: the target could not be analyzed for reasons outside
	// the analyzer (slot unavailable, run cancelled before start).
	StatusSkipped Status = "skipped"
)

// AllStatuses lists every status in report order.
var AllStatuses = []Status{StatusClean, StatusFindings, StatusCrashed, StatusTimedOut, StatusSkipped}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusClean, StatusFindings, StatusCrashed, StatusTimedOut, StatusSkipped:
		return true
	}
	return false
}

// IsFailure reports whether s belongs in the warnings stream.
func (s Status) IsFailure() bool {
	return s == StatusCrashed || s == StatusTimedOut
}

// ResultRecord is the outcome of running the analyzer on one target.
// Written once by the run executor; never modified afterwards.
type ResultRecord struct {
	Target   string `json:"target"`
	Revision string `json:"revision"`

	// Commit is the resolved commit of the analyzed checkout, if known.
	Commit string `json:"commit,omitempty"`

	Status Status `json:"status"`

	// ExitCode is null when the process failed to start, was killed by a
	// signal, or never ran.
	ExitCode *int `json:"exit_code"`

	// Signal is the terminating signal name, e.g. "SIGSEGV".
	Signal *string `json:"signal"`

	DurationMS int64 `json:"duration_ms"`

	// Stdout holds the diagnostic text. Empty for timed-out records.
	Stdout string `json:"stdout"`

	// Stderr holds crash output (tracebacks). Empty for timed-out records.
	Stderr string `json:"stderr"`

	// OutputTruncated is set when either stream hit the capture limit.
	OutputTruncated bool `json:"output_truncated,omitempty"`

	// Reason explains crashed, timed-out and skipped outcomes.
	Reason string `json:"reason,omitempty"`
}

// BatchArtifact is the serialized collection of records for one
// (environment, run type, batch) triple.
type BatchArtifact struct {
	SchemaVersion   string         `json:"schema_version"`
	RunID           string         `json:"run_id"`
	RunType         string         `json:"run_type"`
	EnvID           string         `json:"env_id"`
	Batches         int            `json:"batches"`
	BatchIdx        int            `json:"batch_idx"`
	CacheKey        string         `json:"cache_key"`
	AnalyzerVersion string         `json:"analyzer_version"`
	StartedAt       string         `json:"started_at"`
	FinishedAt      string         `json:"finished_at"`
	Cancelled       bool           `json:"cancelled"`
	Counts          map[Status]int `json:"counts"`
	Records         []ResultRecord `json:"records"`
}

// Record returns the record for target, if present.
func (a *BatchArtifact) Record(target string) (ResultRecord, bool) {
	for _, r := range a.Records {
		if r.Target == target {
			return r, true
		}
	}
	return ResultRecord{}, false
}
