// Package environment computes the per-process execution context once:
// hardware profile, engine backend, model and resolved tool paths.
package environment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"batch-transcriber/internal/diarize"
	"batch-transcriber/internal/discovery"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/output"
	"batch-transcriber/internal/pipeline"
	"batch-transcriber/internal/preprocess"
	"batch-transcriber/internal/process"
	"batch-transcriber/internal/selector"
	"batch-transcriber/internal/toolchain"
	"batch-transcriber/internal/transcribe"
)

// Profiler describes the host.
type Profiler interface {
	Detect() domain.HardwareProfile
}

// Bootstrapper acquires the engine, the model and ffmpeg.
type Bootstrapper interface {
	Ensure(ctx context.Context, backend domain.EngineBackend, model domain.ModelSpec, progress toolchain.ProgressFunc) (toolchain.Paths, error)
}

// Options are the inputs of Build.
type Options struct {
	Settings     domain.Settings
	Profiler     Profiler
	Bootstrapper Bootstrapper
	// ModelsDir receives the selected model's local path.
	ModelsDir string
	Progress  toolchain.ProgressFunc
	Logger    *slog.Logger
}

// Environment is the immutable context threaded through a batch.
type Environment struct {
	Settings domain.Settings        `json:"settings"`
	Profile  domain.HardwareProfile `json:"profile"`
	Backend  domain.EngineBackend   `json:"backend"`
	Model    domain.ModelSpec       `json:"model"`
	Paths    toolchain.Paths        `json:"paths"`
}

// Build profiles the host, selects backend and model, and bootstraps the
// toolchain. A missing engine binary or model is fatal; the batch must not
// start.
func Build(ctx context.Context, opts Options) (*Environment, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Profiler == nil || opts.Bootstrapper == nil {
		return nil, fmt.Errorf("environment requires a profiler and a bootstrapper")
	}

	profile := opts.Profiler.Detect()
	backend := selector.SelectBackend(profile)
	model, err := ChooseModel(profile, opts.Settings)
	if err != nil {
		return nil, err
	}
	if opts.ModelsDir != "" {
		model = selector.WithLocalPath(model, opts.ModelsDir)
	}

	logger.Info("selected whisper.cpp configuration",
		"backend", backend.Name,
		"model", model.ID,
		"min_ram_gb", model.MinRAMGB,
		"os", profile.OS,
		"arch", profile.Arch,
		"ram_bucket", profile.RAMBucket,
		"score", profile.ProcessingScore,
	)
	if profile.RAMGB < model.MinRAMGB {
		logger.Warn("system RAM is below the recommended minimum for the model",
			"ram_gb", profile.RAMGB,
			"min_ram_gb", model.MinRAMGB,
			"model", model.ID,
		)
	}

	paths, err := opts.Bootstrapper.Ensure(ctx, backend, model, opts.Progress)
	if err != nil {
		return nil, fmt.Errorf("toolchain setup: %w", err)
	}
	model.LocalPath = paths.Model
	model.Downloaded = true

	return &Environment{
		Settings: opts.Settings,
		Profile:  profile,
		Backend:  backend,
		Model:    model,
		Paths:    paths,
	}, nil
}

// ChooseModel honors a pinned model id and otherwise selects by hardware
// with the configured score thresholds.
func ChooseModel(profile domain.HardwareProfile, settings domain.Settings) (domain.ModelSpec, error) {
	if id := strings.TrimSpace(settings.ModelID); id != "" {
		spec, ok := selector.ModelByID(id)
		if !ok {
			return domain.ModelSpec{}, fmt.Errorf("unknown model id %q", id)
		}
		return spec, nil
	}
	thresholds := selector.DefaultThresholds().Merge(settings.ScoreThresholds)
	return selector.SelectModel(profile, thresholds), nil
}

// NewOrchestrator wires the pipeline stages to the resolved tool paths.
func (e *Environment) NewOrchestrator(runner process.Runner, resolver *discovery.Resolver, logger *slog.Logger) *pipeline.Orchestrator {
	var diarizer diarize.Diarizer
	if e.Settings.Diarization.Enabled && e.Settings.Diarization.Command != "" {
		diarizer = diarize.NewCommand(e.Settings.Diarization.Command, e.Settings.Diarization.Args, runner, logger)
	}
	o := &pipeline.Orchestrator{
		Preprocessor: preprocess.New(e.Paths.FFmpeg, runner, logger),
		Transcriber:  transcribe.NewExecutor(e.Paths.Binary, e.Paths.Model, e.Settings.Language, runner, logger),
		Diarizer:     diarizer,
		Output: output.Options{
			Format:            e.Settings.OutputFormat,
			IncludeTimestamps: e.Settings.IncludeTimestamps,
		},
		Logger: logger,
	}
	if resolver != nil {
		o.TranscriptExists = resolver.TranscriptExists
	}
	return o
}
