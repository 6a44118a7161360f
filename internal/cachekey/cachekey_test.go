package cachekey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
)

func sampleTargets() []core.Target {
	return []core.Target{
		{Name: "astroid", URL: "https://example.com/astroid.git", Revision: "v3.0.0"},
		{Name: "django", URL: "https://example.com/django.git", Revision: "4.2"},
		{Name: "music21", URL: "https://example.com/music21.git", Revision: "abc123"},
	}
}

func TestDerive_Deterministic(t *testing.T) {
	a := Derive(sampleTargets(), "3.0.1", "3.12.1")
	b := Derive(sampleTargets(), "3.0.1", "3.12.1")
	assert.Equal(t, a, b)
	assert.Regexp(t, `^[0-9a-f]{64}$`, a.String())
}

func TestDerive_OrderIndependent(t *testing.T) {
	in := sampleTargets()
	want := Derive(in, "3.0.1", "3.12.1")

	perms := [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		permuted := []core.Target{in[p[0]], in[p[1]], in[p[2]]}
		assert.Equal(t, want, Derive(permuted, "3.0.1", "3.12.1"), "permutation %v", p)
	}
}

func TestDerive_SensitiveToInputs(t *testing.T) {
	base := Derive(sampleTargets(), "3.0.1", "3.12.1")

	bumped := sampleTargets()
	bumped[1].Revision = "4.2.1"

	renamed := sampleTargets()
	renamed[0].Name = "astroid2"

	assert.NotEqual(t, base, Derive(bumped, "3.0.1", "3.12.1"), "revision change")
	assert.NotEqual(t, base, Derive(renamed, "3.0.1", "3.12.1"), "name change")
	assert.NotEqual(t, base, Derive(sampleTargets(), "3.0.2", "3.12.1"), "analyzer version")
	assert.NotEqual(t, base, Derive(sampleTargets(), "3.0.1", "3.11.7"), "env id")
	assert.NotEqual(t, base, Derive(sampleTargets()[:2], "3.0.1", "3.12.1"), "target removed")
}

func TestDerive_IgnoresURLAndOverrides(t *testing.T) {
	base := Derive(sampleTargets(), "v", "e")

	moved := sampleTargets()
	moved[0].URL = "https://mirror.example.com/astroid.git"
	moved[0].Args = []string{"--disable=all"}

	assert.Equal(t, base, Derive(moved, "v", "e"))
}

func TestDerive_FieldBoundaries(t *testing.T) {
	a := Derive([]core.Target{{Name: "ab", Revision: "c"}}, "v", "e")
	b := Derive([]core.Target{{Name: "a", Revision: "bc"}}, "v", "e")
	assert.NotEqual(t, a, b)
}

func TestPersistRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "commit_string_3.12.txt")
	key := Derive(sampleTargets(), "3.0.1", "3.12.1")

	require.NoError(t, Persist(key, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, key.String()+"\n", string(data))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Equal(t, errors.ECacheKeyMissing, errors.GetCode(err))
}

func TestRead_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"truncated", "abcdef\n"},
		{"uppercase", "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789\n"},
		{"garbage", "not a key at all"},
		{"two keys", Derive(nil, "a", "b").String() + "\n" + Derive(nil, "c", "d").String() + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "key.txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Read(path)
			require.Error(t, err)
			assert.Equal(t, errors.ECacheKeyCorrupt, errors.GetCode(err))
		})
	}
}

func TestPersist_RejectsMalformedKey(t *testing.T) {
	err := Persist(Key("short"), filepath.Join(t.TempDir(), "k.txt"))
	require.Error(t, err)
}

func TestKeyShort(t *testing.T) {
	k := Derive(nil, "v", "e")
	assert.Len(t, k.Short(), 12)
	assert.Equal(t, "abc", Key("abc").Short())
}
