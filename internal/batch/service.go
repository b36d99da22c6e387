// Package batch assembles the long-lived collaborators of one process and
// runs batches through them. Both the desktop app and the CLI sit on top.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"batch-transcriber/internal/config"
	"batch-transcriber/internal/diagnostics"
	"batch-transcriber/internal/discovery"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/environment"
	"batch-transcriber/internal/hardware"
	"batch-transcriber/internal/jobs"
	"batch-transcriber/internal/logging"
	"batch-transcriber/internal/metrics"
	"batch-transcriber/internal/pipeline"
	"batch-transcriber/internal/process"
	"batch-transcriber/internal/selector"
	"batch-transcriber/internal/toolchain"
	"batch-transcriber/internal/transcribe"
)

// ErrNoFix is returned for diagnostics that need manual action.
var ErrNoFix = errors.New("no automatic fix available")

// Toolchain resolves and acquires the engine, the model and ffmpeg.
type Toolchain interface {
	environment.Bootstrapper
	diagnostics.ToolResolver
	EnsureEngine(ctx context.Context, backend domain.EngineBackend, progress toolchain.ProgressFunc) (string, error)
	EnsureModel(ctx context.Context, spec domain.ModelSpec, progress toolchain.ProgressFunc) (string, error)
	EnsureFFmpeg(ctx context.Context, progress toolchain.ProgressFunc) (string, error)
}

// Options configure Open.
type Options struct {
	// SettingsPath defaults to settings.json under the OS data root.
	SettingsPath string
	// Lookup reads environment overrides; nil uses os.LookupEnv.
	Lookup func(string) (string, bool)
	// LogOutput receives console logs; nil means stderr.
	LogOutput io.Writer
	// LogFormat is "text" or "json".
	LogFormat string
}

// Hooks receive run progress. Every field is optional.
type Hooks struct {
	Bootstrap toolchain.ProgressFunc
	Started   func(tracker *jobs.Tracker)
	Progress  func(update jobs.Update)
	Command   func(itemID string, log transcribe.CommandLog)
}

// Service owns settings, logging, metrics and the single active run.
type Service struct {
	Store       config.Store
	Env         config.EnvLoader
	Logger      *slog.Logger
	Metrics     *metrics.Recorder
	MetricsPath string
	Runner      process.Runner
	Toolchain   Toolchain
	ModelsDir   string
	Profiler    environment.Profiler
	Resolver    *discovery.Resolver
	Jobs        *jobs.Manager
	Checker     *diagnostics.Checker

	// Orchestrate overrides pipeline construction; nil uses
	// Environment.NewOrchestrator.
	Orchestrate func(env *environment.Environment) *pipeline.Orchestrator

	closer io.Closer
}

// Open loads settings and builds every collaborator rooted at the
// configured data directory.
func Open(opts Options) (*Service, error) {
	path := opts.SettingsPath
	if path == "" {
		path = config.SettingsPath(config.DefaultDataDir())
	}
	store, err := config.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	env := config.EnvLoader{Lookup: opts.Lookup}
	settings, err := env.Load(store)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logCfg := logging.DefaultConfig(config.LogDir(settings.DataDir))
	logCfg.Level = settings.LogLevel
	logCfg.Output = opts.LogOutput
	if opts.LogFormat != "" {
		logCfg.Format = opts.LogFormat
	}
	if settings.LogFile != "" {
		logCfg.File = settings.LogFile
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	recorder := metrics.New()
	runner := process.NewSupervisor(logger, recorder)
	tools := toolchain.New(settings.DataDir, runner, logger)
	tools.Observer = recorder

	return &Service{
		Store:       store,
		Env:         env,
		Logger:      logger,
		Metrics:     recorder,
		MetricsPath: metrics.DefaultPath(settings.DataDir),
		Runner:      runner,
		Toolchain:   tools,
		ModelsDir:   tools.Layout.ModelsDir,
		Profiler:    hardware.NewProfiler(logger),
		Resolver:    discovery.NewResolver(logger),
		Jobs:        jobs.NewManager(),
		closer:      closer,
	}, nil
}

// Close releases the log file.
func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Settings returns stored settings with environment overrides applied.
func (s *Service) Settings() (domain.Settings, error) {
	settings, err := s.Env.Load(s.Store)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings validates and persists settings.
func (s *Service) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, err
	}
	if err := s.Store.Save(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// Profile returns the memoized hardware profile.
func (s *Service) Profile() domain.HardwareProfile {
	return s.Profiler.Detect()
}

// Prepare builds the execution environment, bootstrapping the toolchain.
func (s *Service) Prepare(ctx context.Context, settings domain.Settings, progress toolchain.ProgressFunc) (*environment.Environment, error) {
	return environment.Build(ctx, environment.Options{
		Settings:     settings,
		Profiler:     s.Profiler,
		Bootstrapper: s.Toolchain,
		ModelsDir:    s.ModelsDir,
		Progress:     progress,
		Logger:       s.logger(),
	})
}

// Run discovers pending files under inputDir, bootstraps the toolchain and
// processes every item sequentially. It blocks until the batch finishes.
// A directory with nothing pending returns an empty summary without any
// setup work.
func (s *Service) Run(ctx context.Context, settings domain.Settings, inputDir string, hooks Hooks) (pipeline.Summary, error) {
	root := strings.TrimSpace(inputDir)
	if root == "" {
		root = settings.InputDir
	}
	if root == "" {
		return pipeline.Summary{}, fmt.Errorf("input directory is required")
	}

	items, err := s.Resolver.Discover(root)
	if err != nil {
		return pipeline.Summary{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	tracker, err := s.Jobs.Start(runID, items, cancel)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer s.Jobs.Finish(runID)
	defer s.flushMetrics()

	logger := s.logger().With("run", runID)
	if hooks.Started != nil {
		hooks.Started(tracker)
	}
	if len(items) == 0 {
		logger.Info("nothing to transcribe", "input_dir", root)
		return pipeline.Summary{RunID: runID}, nil
	}

	env, err := s.Prepare(runCtx, settings, hooks.Bootstrap)
	if err != nil {
		logger.Error("batch setup failed", "error", err)
		return pipeline.Summary{RunID: runID, Total: len(items), Items: tracker.Items()}, err
	}

	orch := s.orchestrator(env)
	orch.Observer = s.Metrics
	orch.OnProgress = hooks.Progress
	orch.OnCommand = hooks.Command

	return orch.Execute(runCtx, tracker), nil
}

// Cancel requests a cooperative stop of the active run.
func (s *Service) Cancel() error {
	return s.Jobs.Cancel()
}

// Diagnose checks tools, the model settings would select and the
// configured directories.
func (s *Service) Diagnose(settings domain.Settings) domain.DiagnosticReport {
	model, err := environment.ChooseModel(s.Profile(), settings)
	if err != nil {
		s.logger().Warn("model selection failed", "error", err)
		model = domain.ModelSpec{}
	}
	return s.checker().Run(settings, model)
}

// Fix applies the automatic remediation for one diagnostic item.
func (s *Service) Fix(ctx context.Context, itemID string, settings domain.Settings, progress toolchain.ProgressFunc) error {
	switch strings.TrimSpace(itemID) {
	case diagnostics.ItemFFmpeg:
		_, err := s.Toolchain.EnsureFFmpeg(ctx, progress)
		return err
	case diagnostics.ItemEngine:
		_, err := s.Toolchain.EnsureEngine(ctx, selector.SelectBackend(s.Profile()), progress)
		return err
	case diagnostics.ItemModel:
		model, err := environment.ChooseModel(s.Profile(), settings)
		if err != nil {
			return err
		}
		_, err = s.Toolchain.EnsureModel(ctx, model, progress)
		return err
	case diagnostics.ItemDataDir:
		if settings.DataDir == "" {
			return fmt.Errorf("data directory is not configured")
		}
		return os.MkdirAll(settings.DataDir, 0o755)
	case "":
		return fmt.Errorf("diagnostic item id is required")
	default:
		return fmt.Errorf("%s: %w", itemID, ErrNoFix)
	}
}

// Models lists the catalog with local paths and downloaded flags, and the
// id settings would select on this host.
func (s *Service) Models(settings domain.Settings) ([]domain.ModelSpec, string) {
	models := selector.Catalog()
	for i := range models {
		if s.ModelsDir != "" {
			models[i] = selector.WithLocalPath(models[i], s.ModelsDir)
		}
		if path, ok := s.Toolchain.ResolveModel(models[i]); ok {
			models[i].LocalPath = path
			models[i].Downloaded = true
		}
	}

	selected := ""
	if model, err := environment.ChooseModel(s.Profile(), settings); err == nil {
		selected = model.ID
	}
	return models, selected
}

// DownloadModel fetches one catalog model.
func (s *Service) DownloadModel(ctx context.Context, id string, progress toolchain.ProgressFunc) (domain.ModelSpec, error) {
	spec, ok := selector.ModelByID(strings.TrimSpace(id))
	if !ok {
		return domain.ModelSpec{}, fmt.Errorf("unknown model id %q", id)
	}
	if s.ModelsDir != "" {
		spec = selector.WithLocalPath(spec, s.ModelsDir)
	}
	path, err := s.Toolchain.EnsureModel(ctx, spec, progress)
	if err != nil {
		return domain.ModelSpec{}, err
	}
	spec.LocalPath = path
	spec.Downloaded = true
	return spec, nil
}

// PinModel stores id as the model override; empty clears the pin.
func (s *Service) PinModel(id string) (domain.Settings, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		if _, ok := selector.ModelByID(id); !ok {
			return domain.Settings{}, fmt.Errorf("unknown model id %q", id)
		}
	}
	settings, err := s.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings.ModelID = id
	return s.SaveSettings(settings)
}

func (s *Service) orchestrator(env *environment.Environment) *pipeline.Orchestrator {
	if s.Orchestrate != nil {
		return s.Orchestrate(env)
	}
	return env.NewOrchestrator(s.Runner, s.Resolver, s.logger())
}

func (s *Service) checker() *diagnostics.Checker {
	if s.Checker == nil {
		s.Checker = diagnostics.NewChecker(s.Toolchain)
	}
	return s.Checker
}

func (s *Service) flushMetrics() {
	if s.Metrics == nil || s.MetricsPath == "" {
		return
	}
	if err := s.Metrics.Flush(s.MetricsPath); err != nil {
		s.logger().Warn("write metrics", "path", s.MetricsPath, "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
