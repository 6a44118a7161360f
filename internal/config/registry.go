package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/fs"
)

// Per-target timeout bounds.
const (
	MinTargetTimeout = 10 * time.Second
	MaxTargetTimeout = 24 * time.Hour
)

// Registry is the loaded, validated corpus. Targets are held sorted by
// name; the file's order never leaks out.
type Registry struct {
	Version int
	Path    string

	targets []core.Target
	byName  map[string]int
}

// NewRegistry validates targets and builds a Registry.
// Returns E_INVALID_REGISTRY for invalid or duplicate entries.
func NewRegistry(targets []core.Target) (*Registry, error) {
	sorted := core.SortByName(targets)
	r := &Registry{
		Version: 1,
		targets: sorted,
		byName:  make(map[string]int, len(sorted)),
	}
	for i, t := range sorted {
		if err := validateTarget(t); err != nil {
			return nil, err
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, errors.NewWithDetails(errors.EInvalidRegistry, "duplicate target name: "+t.Name, map[string]string{"target": t.Name})
		}
		r.byName[t.Name] = i
	}
	return r, nil
}

// Targets returns a copy of all targets, sorted by name.
func (r *Registry) Targets() []core.Target {
	out := make([]core.Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Lookup returns the target with the given name.
func (r *Registry) Lookup(name string) (core.Target, bool) {
	i, ok := r.byName[name]
	if !ok {
		return core.Target{}, false
	}
	return r.targets[i], true
}

// Len returns the number of targets.
func (r *Registry) Len() int {
	return len(r.targets)
}

// LoadRegistry reads a registry file. Files ending in .yaml or .yml are
// decoded as YAML; anything else as strict JSON.
// Returns E_NO_REGISTRY if the file does not exist and E_INVALID_REGISTRY
// for any syntax, type or validation error.
func LoadRegistry(filesystem fs.FS, path string) (*Registry, error) {
	data, err := filesystem.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewWithDetails(errors.ENoRegistry, "registry file not found", map[string]string{"registry": path})
		}
		return nil, errors.WrapWithDetails(errors.ENoRegistry, "failed to read registry file", err, map[string]string{"registry": path})
	}

	var raw rawRegistry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = parseRegistryYAML(data)
	default:
		raw, err = parseRegistryJSON(data)
	}
	if err != nil {
		return nil, withRegistryPath(err, path)
	}

	if raw.Version != 1 {
		return nil, withRegistryPath(errors.New(errors.EInvalidRegistry, "version must be 1"), path)
	}

	targets := make([]core.Target, 0, len(raw.Targets))
	for i, rt := range raw.Targets {
		t, err := rt.toTarget(targetField(i))
		if err != nil {
			return nil, withRegistryPath(err, path)
		}
		targets = append(targets, t)
	}

	reg, err := NewRegistry(targets)
	if err != nil {
		return nil, withRegistryPath(err, path)
	}
	reg.Path = path
	return reg, nil
}

type rawRegistry struct {
	Version int         `yaml:"version"`
	Targets []rawTarget `yaml:"targets"`
}

type rawTarget struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Revision string   `yaml:"revision"`
	Paths    []string `yaml:"paths"`
	Args     []string `yaml:"args"`
	Timeout  string   `yaml:"timeout"`
}

func (rt rawTarget) toTarget(field string) (core.Target, error) {
	t := core.Target{
		Name:     rt.Name,
		URL:      rt.URL,
		Revision: rt.Revision,
		Paths:    rt.Paths,
		Args:     rt.Args,
	}
	if rt.Timeout != "" {
		d, err := time.ParseDuration(rt.Timeout)
		if err != nil {
			return core.Target{}, errors.New(errors.EInvalidRegistry, field+".timeout invalid duration: "+err.Error())
		}
		if d < MinTargetTimeout || d > MaxTargetTimeout {
			return core.Target{}, errors.New(errors.EInvalidRegistry, field+".timeout must be between "+MinTargetTimeout.String()+" and "+MaxTargetTimeout.String())
		}
		t.Timeout = d
	}
	return t, nil
}

func validateTarget(t core.Target) error {
	if err := core.ValidateName(t.Name); err != nil {
		pe, _ := errors.AsPrimerError(err)
		return errors.NewWithDetails(errors.EInvalidRegistry, "invalid target name: "+pe.Msg, map[string]string{"target": t.Name})
	}
	if err := core.ValidateStruct(t); err != nil {
		return errors.NewWithDetails(errors.EInvalidRegistry, "invalid target "+t.Name+": "+err.Error(), map[string]string{"target": t.Name})
	}
	for _, p := range t.Paths {
		if filepath.IsAbs(p) || !filepath.IsLocal(p) {
			return errors.NewWithDetails(errors.EInvalidRegistry, "target "+t.Name+" path must be relative to the checkout: "+p, map[string]string{"target": t.Name})
		}
	}
	return nil
}

func parseRegistryYAML(data []byte) (rawRegistry, error) {
	var raw rawRegistry
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if stderrors.Is(err, io.EOF) {
			return raw, errors.New(errors.EInvalidRegistry, "registry file is empty")
		}
		return raw, errors.New(errors.EInvalidRegistry, "invalid yaml: "+err.Error())
	}
	return raw, nil
}

// parseRegistryJSON parses with strict type checking: unknown keys and
// wrongly typed values are errors rather than silently defaulted.
func parseRegistryJSON(data []byte) (rawRegistry, error) {
	var raw rawRegistry

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return raw, errors.New(errors.EInvalidRegistry, "invalid json: "+err.Error())
	}

	allowedKeys := map[string]bool{"version": true, "targets": true}
	for key := range top {
		if !allowedKeys[key] {
			return raw, errors.New(errors.EInvalidRegistry, "unknown field: "+key)
		}
	}

	// Parse version - required, must be integer
	rawVersion, ok := top["version"]
	if !ok {
		return raw, errors.New(errors.EInvalidRegistry, "missing required field version")
	}
	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return raw, errors.New(errors.EInvalidRegistry, "version must be an integer")
	}
	raw.Version = version

	// Parse targets - required, must be array of objects
	rawTargets, ok := top["targets"]
	if !ok {
		return raw, errors.New(errors.EInvalidRegistry, "missing required field targets")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawTargets, &items); err != nil {
		return raw, errors.New(errors.EInvalidRegistry, "targets must be an array")
	}

	raw.Targets = make([]rawTarget, 0, len(items))
	for i, item := range items {
		rt, err := parseTargetJSON(item, targetField(i))
		if err != nil {
			return raw, err
		}
		raw.Targets = append(raw.Targets, rt)
	}
	return raw, nil
}

func parseTargetJSON(item json.RawMessage, field string) (rawTarget, error) {
	var rt rawTarget

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
		return rt, errors.New(errors.EInvalidRegistry, field+" must be an object")
	}

	allowedKeys := map[string]bool{"name": true, "url": true, "revision": true, "paths": true, "args": true, "timeout": true}
	for key := range obj {
		if !allowedKeys[key] {
			return rt, errors.New(errors.EInvalidRegistry, field+" contains unknown field: "+key)
		}
	}

	var err error
	if rt.Name, err = requiredString(obj, "name", field); err != nil {
		return rt, err
	}
	if rt.URL, err = requiredString(obj, "url", field); err != nil {
		return rt, err
	}
	if rt.Revision, err = requiredString(obj, "revision", field); err != nil {
		return rt, err
	}
	if rt.Paths, err = optionalStrings(obj, "paths", field); err != nil {
		return rt, err
	}
	if rt.Args, err = optionalStrings(obj, "args", field); err != nil {
		return rt, err
	}
	if v, ok := obj["timeout"]; ok {
		if err := json.Unmarshal(v, &rt.Timeout); err != nil {
			return rt, errors.New(errors.EInvalidRegistry, field+".timeout must be a string (Go duration format, e.g., '15m')")
		}
	}
	return rt, nil
}

func requiredString(obj map[string]json.RawMessage, key, field string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", errors.New(errors.EInvalidRegistry, field+" missing required field '"+key+"'")
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", errors.New(errors.EInvalidRegistry, field+"."+key+" must be a string")
	}
	return s, nil
}

func optionalStrings(obj map[string]json.RawMessage, key, field string) ([]string, error) {
	v, ok := obj[key]
	if !ok {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, errors.New(errors.EInvalidRegistry, field+"."+key+" must be an array of strings")
	}
	return out, nil
}

func targetField(i int) string {
	return "targets[" + strconv.Itoa(i) + "]"
}

func withRegistryPath(err error, path string) error {
	pe, ok := errors.AsPrimerError(err)
	if !ok {
		return errors.WrapWithDetails(errors.EInvalidRegistry, "invalid registry", err, map[string]string{"registry": path})
	}
	details := map[string]string{"registry": path}
	for k, v := range pe.Details {
		details[k] = v
	}
	return errors.WrapWithDetails(pe.Code, pe.Msg, pe.Cause, details)
}
