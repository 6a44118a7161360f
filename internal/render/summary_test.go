package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/primer/internal/fetch"
	"github.com/NielsdaWheelz/primer/internal/store"
)

func TestWriteBatchSummary(t *testing.T) {
	a := store.BatchArtifact{
		RunType:  "pr",
		EnvID:    "3.12.1",
		Batches:  2,
		BatchIdx: 1,
		Counts: map[store.Status]int{
			store.StatusClean: 1, store.StatusFindings: 1, store.StatusCrashed: 1,
		},
		Records:   make([]store.ResultRecord, 3),
		Cancelled: true,
	}

	var buf bytes.Buffer
	WriteBatchSummary(&buf, BatchSummary{Artifact: a, Paths: []string{"out/output_3.12.1_pr_batch1.json"}})

	assert.Equal(t, "batch: 1/2 (type pr, env 3.12.1)\n"+
		"targets: 3 (clean 1, findings 1, crashed 1, timed-out 0, skipped 0)\n"+
		"cancelled: true\n"+
		"artifact: out/output_3.12.1_pr_batch1.json\n", buf.String())
}

func TestWriteFetchTable(t *testing.T) {
	rep := fetch.Report{Results: []fetch.Result{
		{Target: "astroid", Revision: "v3.0.1", Commit: "1a2b3c4d5e6f7a8b9c0d", Attempts: 1},
		{Target: "django", Revision: "4.2", Attempts: 3, ErrorCode: "E_FETCH_FAILED", Error: "network down"},
		{Target: "flask", Revision: "3.0.0", Commit: "abc", Cached: true},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteFetchTable(&buf, rep))

	assert.Equal(t, ""+
		"TARGET   REVISION  COMMIT        RESULT   ATTEMPTS\n"+
		"astroid  v3.0.1    1a2b3c4d5e6f  fetched  1\n"+
		"django   4.2       -             failed   3\n"+
		"flask    3.0.0     abc           cached   0\n", buf.String())

	buf.Reset()
	WriteFetchFailures(&buf, rep)
	assert.Equal(t, "warning: django@4.2 not cached: network down\n", buf.String())
}

func TestWriteKeyValues(t *testing.T) {
	var buf bytes.Buffer
	WriteKeyValues(&buf, [][2]string{{"cache_dir", "/c"}, {"targets", "3"}})
	assert.Equal(t, "cache_dir: /c\ntargets: 3\n", buf.String())
}
