// Package analyzer invokes the external analyzer on one checkout and
// classifies how it ended.
package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/NielsdaWheelz/primer/internal/store"
)

// Raw is what was observed about one analyzer process.
type Raw struct {
	// ExitCode is -1 when unknown (not started, signaled, stopped).
	ExitCode int
	Signal   string

	Stdout    string
	Stderr    string
	Truncated bool

	// StartErr is set when the process could not be started.
	StartErr error

	// TimedOut means the per-target timeout fired and the process group
	// was stopped. Cancelled means the whole run was cancelled instead.
	TimedOut  bool
	Cancelled bool
	Timeout   time.Duration

	Duration time.Duration
}

// Outcome is a classified analyzer result.
type Outcome struct {
	Status    store.Status
	ExitCode  *int
	Signal    string
	Stdout    string
	Stderr    string
	Truncated bool
	Duration  time.Duration
	Reason    string
}

// Classifier maps raw process results to outcome classes.
type Classifier struct {
	// CrashExitMask marks exit codes as crashes when they share a bit with
	// it (pylint encodes fatal=1 and usage error=32 this way).
	CrashExitMask int

	// CrashMarkers mark any run whose stderr contains one as crashed.
	CrashMarkers []string
}

// Classify applies, in order: cancelled (skipped), timed-out, start
// failure, signal, crash exit bits, crash marker; then clean when the
// analyzer exited 0 with no output, findings otherwise.
// Timed-out and cancelled outcomes never carry partial output.
func (c Classifier) Classify(r Raw) Outcome {
	o := Outcome{Duration: r.Duration}

	switch {
	case r.Cancelled:
		o.Status = store.StatusSkipped
		o.Reason = "run cancelled"
		return o
	case r.TimedOut:
		o.Status = store.StatusTimedOut
		o.Reason = "exceeded timeout of " + r.Timeout.String()
		return o
	case r.StartErr != nil:
		o.Status = store.StatusCrashed
		o.Reason = "failed to start analyzer: " + r.StartErr.Error()
		return o
	}

	o.Stdout, o.Stderr, o.Truncated = r.Stdout, r.Stderr, r.Truncated
	o.Signal = r.Signal
	if r.ExitCode >= 0 && r.Signal == "" {
		code := r.ExitCode
		o.ExitCode = &code
	}

	switch {
	case r.Signal != "":
		o.Status = store.StatusCrashed
		o.Reason = "terminated by " + r.Signal
	case r.ExitCode < 0:
		o.Status = store.StatusCrashed
		o.Reason = "analyzer exit status unknown"
	case r.ExitCode&c.CrashExitMask != 0:
		o.Status = store.StatusCrashed
		o.Reason = fmt.Sprintf("exit code %d matches crash mask %d", r.ExitCode, c.CrashExitMask)
	case c.crashMarker(r.Stderr) != "":
		o.Status = store.StatusCrashed
		o.Reason = "stderr contains " + strings.TrimSpace(c.crashMarker(r.Stderr))
	case r.ExitCode == 0 && strings.TrimSpace(r.Stdout) == "":
		o.Status = store.StatusClean
	default:
		o.Status = store.StatusFindings
	}
	return o
}

func (c Classifier) crashMarker(stderr string) string {
	for _, m := range c.CrashMarkers {
		if m != "" && strings.Contains(stderr, m) {
			return m
		}
	}
	return ""
}
