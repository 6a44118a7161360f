// Package commands implements primer CLI commands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/NielsdaWheelz/primer/internal/analyzer"
	"github.com/NielsdaWheelz/primer/internal/cachekey"
	"github.com/NielsdaWheelz/primer/internal/config"
	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/exec"
	"github.com/NielsdaWheelz/primer/internal/fs"
	"github.com/NielsdaWheelz/primer/internal/logging"
	"github.com/NielsdaWheelz/primer/internal/metrics"
	"github.com/NielsdaWheelz/primer/internal/store"
	"github.com/NielsdaWheelz/primer/internal/telemetry"
	"github.com/NielsdaWheelz/primer/internal/version"
)

// Deps are the collaborators every command uses. Tests substitute fakes.
type Deps struct {
	Runner exec.CommandRunner
	FS     fs.FS

	// Getenv reads environment variables. Nil means os.Getenv.
	Getenv func(string) string

	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	Now    func() time.Time

	// Invoker replaces the analyzer subprocess when set.
	Invoker analyzer.Invoker
}

func (d Deps) getenv(key string) string {
	if d.Getenv != nil {
		return d.Getenv(key)
	}
	return os.Getenv(key)
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Common holds options shared by every command that reads configuration.
type Common struct {
	// ConfigPath is the --config flag.
	ConfigPath string

	Overrides config.Overrides
}

// ObservabilityOpts names optional metrics and trace output files.
type ObservabilityOpts struct {
	MetricsFile string
	TraceFile   string
}

// session is the loaded configuration for one command invocation.
type session struct {
	deps       Deps
	logger     *slog.Logger
	settings   config.Settings
	configPath string
	registry   *config.Registry
	store      *store.Store
}

// openSession loads settings and the registry.
func openSession(deps Deps, c Common) (*session, error) {
	settings, path, err := config.Load(deps.FS, config.LoadOptions{
		Path:      c.ConfigPath,
		Getenv:    deps.Getenv,
		Overrides: c.Overrides,
	})
	if err != nil {
		return nil, err
	}

	reg, err := config.LoadRegistry(deps.FS, settings.Registry)
	if err != nil {
		return nil, err
	}

	logger := logging.OrDefault(deps.Logger)
	logger.Debug("configuration loaded",
		slog.String("config", path),
		slog.String("registry", settings.Registry),
		slog.Int("targets", reg.Len()),
	)

	return &session{
		deps:       deps,
		logger:     logger,
		settings:   settings,
		configPath: path,
		registry:   reg,
		store:      store.NewStore(settings.CacheDir, settings.OutputDir),
	}, nil
}

// identity is what a run is keyed by besides the registry.
type identity struct {
	AnalyzerVersion string
	EnvID           string
}

// resolveIdentity determines the analyzer version and environment id.
// Returns E_ENVIRONMENT_UNSPECIFIED when the environment id sanitizes to
// nothing, since it could not name artifacts.
func (s *session) resolveIdentity(ctx context.Context) (identity, error) {
	a := s.settings.Analyzer
	v, err := analyzer.ResolveVersion(ctx, s.deps.Runner, a.Version, a.VersionCommand)
	if err != nil {
		return identity{}, err
	}
	env, err := s.resolveEnvID(ctx)
	if err != nil {
		return identity{}, err
	}

	s.logger.Debug("identity resolved", slog.String("analyzer_version", v), slog.String("env_id", env))
	return identity{AnalyzerVersion: v, EnvID: env}, nil
}

// resolveEnvID determines the environment id without probing the analyzer.
func (s *session) resolveEnvID(ctx context.Context) (string, error) {
	e := s.settings.Environment
	env, err := analyzer.ResolveEnvID(ctx, s.deps.Runner, e.ID, e.IDCommand)
	if err != nil {
		return "", err
	}
	if store.SanitizeEnv(env) == "" {
		return "", errors.NewWithDetails(errors.EEnvironmentUnspecified,
			"environment id has no usable characters", map[string]string{"env_id": env})
	}
	return env, nil
}

// cacheKey derives the key for the loaded registry under id.
func (s *session) cacheKey(id identity) cachekey.Key {
	return cachekey.Derive(s.registry.Targets(), id.AnalyzerVersion, id.EnvID)
}

// commitStringPath returns override when set, else the default location
// for env.
func (s *session) commitStringPath(override, env string) string {
	if override != "" {
		return override
	}
	return s.store.CommitStringPath(env)
}

// observability starts tracing and metrics collection. finish flushes
// spans and writes the metrics file; its failures are logged, not returned.
func observability(logger *slog.Logger, opts ObservabilityOpts) (*metrics.Metrics, func(), error) {
	shutdown, err := telemetry.Setup(opts.TraceFile, version.FullVersion())
	if err != nil {
		return nil, nil, errors.WrapWithDetails(errors.EPersistFailed, "failed to open trace file", err,
			map[string]string{"path": opts.TraceFile})
	}
	m := metrics.New()

	finish := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("failed to flush traces", slog.String("path", opts.TraceFile), slog.Any("error", err))
		}
		if opts.MetricsFile == "" {
			return
		}
		if err := m.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Warn("failed to write metrics", slog.String("path", opts.MetricsFile), slog.Any("error", err))
		}
	}
	return m, finish, nil
}

// cancelledError reports that ctx ended the command early.
func cancelledError(msg string, details map[string]string) error {
	return errors.NewWithDetails(errors.ECancelled, msg, details)
}
