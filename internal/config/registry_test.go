package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
)

func TestLoadRegistry_Valid(t *testing.T) {
	for _, name := range []string{"registry_valid.json", "registry_valid.yaml"} {
		t.Run(name, func(t *testing.T) {
			stub := newStubFS()
			stub.files["/r/"+name] = fixture(t, name)

			reg, err := LoadRegistry(stub, "/r/"+name)
			require.NoError(t, err)

			assert.Equal(t, 3, reg.Len())
			assert.Equal(t, []string{"astroid", "django", "music21"}, core.Names(reg.Targets()))
			assert.Equal(t, "/r/"+name, reg.Path)

			m, ok := reg.Lookup("music21")
			require.True(t, ok)
			assert.Equal(t, "v9.1.0", m.Revision)
			assert.Equal(t, []string{"music21"}, m.Paths)
			assert.Equal(t, 20*time.Minute, m.Timeout)

			d, ok := reg.Lookup("django")
			require.True(t, ok)
			assert.Equal(t, []string{"--disable=fixme"}, d.Args)

			_, ok = reg.Lookup("numpy")
			assert.False(t, ok)
		})
	}
}

func TestLoadRegistry_Missing(t *testing.T) {
	_, err := LoadRegistry(newStubFS(), "/r/none.json")
	require.Error(t, err)
	assert.Equal(t, errors.ENoRegistry, errors.GetCode(err))
}

func TestLoadRegistry_InvalidJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"syntax", `{"version": 1, "targets": [`, "invalid json"},
		{"unknown top key", `{"version": 1, "targets": [], "extra": true}`, "unknown field: extra"},
		{"missing version", `{"targets": []}`, "missing required field version"},
		{"version string", `{"version": "1", "targets": []}`, "version must be an integer"},
		{"version 2", `{"version": 2, "targets": []}`, "version must be 1"},
		{"targets object", `{"version": 1, "targets": {}}`, "targets must be an array"},
		{"target not object", `{"version": 1, "targets": ["astroid"]}`, "targets[0] must be an object"},
		{"unknown target key", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "r", "branch": "x"}]}`, "unknown field: branch"},
		{"missing revision", `{"version": 1, "targets": [{"name": "a", "url": "u"}]}`, "missing required field 'revision'"},
		{"name number", `{"version": 1, "targets": [{"name": 1, "url": "u", "revision": "r"}]}`, "targets[0].name must be a string"},
		{"paths string", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "r", "paths": "src"}]}`, "paths must be an array of strings"},
		{"bad timeout", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "r", "timeout": "soon"}]}`, "timeout invalid duration"},
		{"timeout too small", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "r", "timeout": "1s"}]}`, "timeout must be between"},
		{"bad name", `{"version": 1, "targets": [{"name": "Bad/Name", "url": "u", "revision": "r"}]}`, "invalid target name"},
		{"empty url", `{"version": 1, "targets": [{"name": "a", "url": "", "revision": "r"}]}`, "URL"},
		{"revision with space", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "v 1"}]}`, "Revision"},
		{"absolute path", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "r", "paths": ["/etc"]}]}`, "relative to the checkout"},
		{"escaping path", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "r", "paths": ["../x"]}]}`, "relative to the checkout"},
		{"duplicate", `{"version": 1, "targets": [{"name": "a", "url": "u", "revision": "r"}, {"name": "a", "url": "u2", "revision": "r2"}]}`, "duplicate target name: a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubFS()
			stub.files["/r/targets.json"] = []byte(tt.content)

			_, err := LoadRegistry(stub, "/r/targets.json")
			require.Error(t, err)
			assert.Equal(t, errors.EInvalidRegistry, errors.GetCode(err))
			assert.True(t, errors.IsConfigError(err))
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg), "error %q should contain %q", err.Error(), tt.wantMsg)

			pe, ok := errors.AsPrimerError(err)
			require.True(t, ok)
			assert.Equal(t, "/r/targets.json", pe.Details["registry"])
		})
	}
}

func TestLoadRegistry_InvalidYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"unknown key", "version: 1\ntargets:\n  - name: a\n    url: u\n    revision: r\n    branch: main\n"},
		{"wrong type", "version: 1\ntargets: yes\n"},
		{"version 3", "version: 3\ntargets: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubFS()
			stub.files["/r/targets.yml"] = []byte(tt.content)

			_, err := LoadRegistry(stub, "/r/targets.yml")
			require.Error(t, err)
			assert.Equal(t, errors.EInvalidRegistry, errors.GetCode(err))
		})
	}
}

func TestNewRegistry_EmptyIsValid(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_TargetsReturnsCopy(t *testing.T) {
	reg, err := NewRegistry([]core.Target{{Name: "a", URL: "u", Revision: "r"}})
	require.NoError(t, err)

	ts := reg.Targets()
	ts[0].Name = "mutated"
	assert.Equal(t, "a", reg.Targets()[0].Name)
}
