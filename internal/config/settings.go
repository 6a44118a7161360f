// Package config loads primer's settings file and corpus registry.
//
// Settings are layered, highest wins: command-line overrides, PRIMER_*
// environment variables, primer.yaml, built-in defaults.
package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/fs"
)

// DefaultSettingsFile is read from the working directory when neither
// --config nor PRIMER_CONFIG names a file.
const DefaultSettingsFile = "primer.yaml"

// Environment variables consulted by Load.
const (
	EnvConfig    = "PRIMER_CONFIG"
	EnvCacheDir  = "PRIMER_CACHE_DIR"
	EnvOutputDir = "PRIMER_OUTPUT_DIR"
	EnvRegistry  = "PRIMER_REGISTRY"
	EnvEnvID     = "PRIMER_ENV_ID"
)

// Settings is the resolved primer configuration.
type Settings struct {
	CacheDir  string `yaml:"cache_dir" validate:"required"`
	OutputDir string `yaml:"output_dir" validate:"required"`
	Registry  string `yaml:"registry" validate:"required"`

	Analyzer    AnalyzerSettings    `yaml:"analyzer"`
	Environment EnvironmentSettings `yaml:"environment"`
	Fetch       FetchSettings       `yaml:"fetch"`
	Warnings    WarningsSettings    `yaml:"warnings"`
}

// AnalyzerSettings describes how the analyzer executable is invoked.
type AnalyzerSettings struct {
	// Command is the executable and its leading arguments, e.g.
	// ["python", "-m", "pylint"].
	Command []string `yaml:"command" validate:"min=1,dive,required"`

	// Args are appended for every target, before per-target args.
	Args []string `yaml:"args"`

	// Version is a literal analyzer version. When empty, VersionCommand
	// is run and its trimmed stdout is used.
	Version        string   `yaml:"version"`
	VersionCommand []string `yaml:"version_command" validate:"required_without=Version,dive,required"`

	Env map[string]string `yaml:"env"`

	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	Workers int           `yaml:"workers" validate:"gte=1,lte=256"`

	// CrashExitMask: any exit code sharing a bit with the mask is a crash.
	CrashExitMask int `yaml:"crash_exit_mask" validate:"gte=0,lte=255"`

	// CrashMarkers: stderr containing any of these is a crash.
	CrashMarkers []string `yaml:"crash_markers" validate:"dive,required"`

	// MaxOutputBytes bounds each captured stream per target.
	MaxOutputBytes int `yaml:"max_output_bytes" validate:"gte=1024"`
}

// EnvironmentSettings identifies the runtime environment (interpreter
// version) mixed into the cache key and artifact names.
type EnvironmentSettings struct {
	ID        string   `yaml:"id"`
	IDCommand []string `yaml:"id_command" validate:"required_without=ID,dive,required"`
}

// FetchSettings tunes the corpus fetcher.
type FetchSettings struct {
	Workers        int           `yaml:"workers" validate:"gte=1,lte=64"`
	Attempts       int           `yaml:"attempts" validate:"gte=1,lte=10"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`

	// Rate is the maximum number of fetch attempts started per second.
	// Zero disables limiting.
	Rate float64 `yaml:"rate" validate:"gte=0"`

	// Depth is the git fetch depth. Zero fetches full history.
	Depth int `yaml:"depth" validate:"gte=0"`
}

// WarningsSettings bounds the warnings stream.
type WarningsSettings struct {
	MaxBytes int `yaml:"max_bytes" validate:"gte=256"`
}

// DefaultSettings returns built-in defaults used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		CacheDir:  ".primer/cache",
		OutputDir: ".primer/output",
		Registry:  "primer_targets.json",
		Analyzer: AnalyzerSettings{
			Command:        []string{"pylint"},
			Args:           []string{"--output-format=parseable", "--score=n", "--persistent=n"},
			VersionCommand: []string{"pylint", "--version"},
			Timeout:        10 * time.Minute,
			Workers:        runtime.NumCPU(),
			CrashExitMask:  1 | 32,
			CrashMarkers:   []string{"Traceback (most recent call last):"},
			MaxOutputBytes: 8 << 20,
		},
		Environment: EnvironmentSettings{
			IDCommand: []string{"python3", "-c", "import platform; print(platform.python_version())"},
		},
		Fetch: FetchSettings{
			Workers:        4,
			Attempts:       3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
			Timeout:        10 * time.Minute,
			Rate:           2,
			Depth:          1,
		},
		Warnings: WarningsSettings{
			MaxBytes: 16 << 10,
		},
	}
}

// Overrides carries command-line flag values. Zero values are ignored.
type Overrides struct {
	CacheDir  string
	OutputDir string
	Registry  string
	EnvID     string
	Workers   int
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Path is the --config flag value. Empty falls back to PRIMER_CONFIG,
	// then to DefaultSettingsFile if it exists.
	Path string

	// Getenv reads environment variables. Nil means os.Getenv.
	Getenv func(string) string

	Overrides Overrides
}

// Load resolves settings from all layers and validates the result.
// Returns E_INVALID_CONFIG for unreadable, malformed or invalid settings,
// including a settings file named explicitly that does not exist.
func Load(filesystem fs.FS, opts LoadOptions) (Settings, string, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	settings := DefaultSettings()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		if v := getenv(EnvConfig); v != "" {
			path, explicit = v, true
		} else {
			path = DefaultSettingsFile
		}
	}

	data, err := filesystem.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeSettings(data, &settings); err != nil {
			return Settings{}, path, errors.WrapWithDetails(errors.EInvalidConfig, "invalid settings file", err, map[string]string{"config": path})
		}
	case os.IsNotExist(err) && !explicit:
		path = ""
	case os.IsNotExist(err):
		return Settings{}, path, errors.NewWithDetails(errors.EInvalidConfig, "settings file not found", map[string]string{"config": path})
	default:
		return Settings{}, path, errors.WrapWithDetails(errors.EInvalidConfig, "failed to read settings file", err, map[string]string{"config": path})
	}

	applyEnv(&settings, getenv)
	applyOverrides(&settings, opts.Overrides)

	if err := ValidateSettings(settings); err != nil {
		return Settings{}, path, err
	}
	return settings, path, nil
}

// decodeSettings decodes YAML over the defaults already in s. Unknown keys
// are rejected; an empty document leaves the defaults untouched.
func decodeSettings(data []byte, s *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(s *Settings, getenv func(string) string) {
	if v := getenv(EnvCacheDir); v != "" {
		s.CacheDir = v
	}
	if v := getenv(EnvOutputDir); v != "" {
		s.OutputDir = v
	}
	if v := getenv(EnvRegistry); v != "" {
		s.Registry = v
	}
	if v := getenv(EnvEnvID); v != "" {
		s.Environment.ID = v
	}
}

func applyOverrides(s *Settings, o Overrides) {
	if o.CacheDir != "" {
		s.CacheDir = o.CacheDir
	}
	if o.OutputDir != "" {
		s.OutputDir = o.OutputDir
	}
	if o.Registry != "" {
		s.Registry = o.Registry
	}
	if o.EnvID != "" {
		s.Environment.ID = o.EnvID
	}
	if o.Workers > 0 {
		s.Analyzer.Workers = o.Workers
	}
}

// ValidateSettings validates struct tags and returns E_INVALID_CONFIG on failure.
func ValidateSettings(s Settings) error {
	if err := core.ValidateStruct(s); err != nil {
		return errors.Wrap(errors.EInvalidConfig, "invalid settings: "+err.Error(), err)
	}
	return nil
}

// TimeoutFor returns the analyzer timeout for t: its own override if set,
// the configured default otherwise.
func (a AnalyzerSettings) TimeoutFor(t core.Target) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return a.Timeout
}

// Describe returns a flat key/value view for doctor output.
func (s Settings) Describe() [][2]string {
	return [][2]string{
		{"cache_dir", s.CacheDir},
		{"output_dir", s.OutputDir},
		{"registry", s.Registry},
		{"analyzer_timeout", s.Analyzer.Timeout.String()},
		{"analyzer_workers", strconv.Itoa(s.Analyzer.Workers)},
		{"fetch_workers", strconv.Itoa(s.Fetch.Workers)},
		{"fetch_attempts", strconv.Itoa(s.Fetch.Attempts)},
	}
}
