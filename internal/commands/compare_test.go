package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/primer/internal/aggregate"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/store"
)

func (f *fixture) writeArtifact(runType string, records ...store.ResultRecord) {
	f.t.Helper()
	a := aggregate.Aggregate(records, aggregate.Meta{
		RunType: runType, EnvID: "3.12.1", Batches: 1, BatchIdx: 0,
		AnalyzerVersion: "pylint 3.0.1", StartedAt: time.Now(), FinishedAt: time.Now(),
	})
	_, err := aggregate.Write(f.store(), a, 0)
	require.NoError(f.t, err)
}

func TestCompare_Markdown(t *testing.T) {
	f := newFixture(t, targetSpec{Name: "alpha", URL: "u", Revision: "v1"})
	f.writeArtifact("main",
		store.ResultRecord{Target: "alpha", Status: store.StatusFindings, Stdout: "a.py:1: [W0611] unused\n"},
		store.ResultRecord{Target: "beta", Status: store.StatusClean},
	)
	f.writeArtifact("pr",
		store.ResultRecord{Target: "alpha", Status: store.StatusFindings, Stdout: "a.py:1: [W0611] unused\na.py:3: [E1101] no-member\n"},
		store.ResultRecord{Target: "beta", Status: store.StatusCrashed, Reason: "terminated by SIGSEGV"},
	)

	err := Compare(context.Background(), f.deps, CompareOpts{Common: f.common, BaseType: "main", PRType: "pr"})
	require.NoError(t, err)

	out := f.stdout.String()
	assert.Contains(t, out, "## primer: pr vs main (env 3.12.1)")
	assert.Contains(t, out, "- **beta**: clean → crashed (terminated by SIGSEGV)")
	assert.Contains(t, out, "+ a.py:3: [E1101] no-member")
}

func TestCompare_OutFile(t *testing.T) {
	f := newFixture(t, targetSpec{Name: "alpha", URL: "u", Revision: "v1"})
	f.writeArtifact("main", store.ResultRecord{Target: "alpha", Status: store.StatusClean})
	f.writeArtifact("pr", store.ResultRecord{Target: "alpha", Status: store.StatusClean})

	out := filepath.Join(f.dir, "comment.md")
	require.NoError(t, Compare(context.Background(), f.deps, CompareOpts{Common: f.common, BaseType: "main", PRType: "pr", Out: out}))

	assert.Empty(t, f.stdout.String())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No changes.")
}

func TestCompare_MissingSide(t *testing.T) {
	f := newFixture(t, targetSpec{Name: "alpha", URL: "u", Revision: "v1"})
	f.writeArtifact("main", store.ResultRecord{Target: "alpha", Status: store.StatusClean})

	err := Compare(context.Background(), f.deps, CompareOpts{Common: f.common, BaseType: "main", PRType: "pr"})
	require.Error(t, err)
	assert.Equal(t, errors.EArtifactNotFound, errors.GetCode(err))
}
