// Package transcribe runs the whisper.cpp engine against normalized audio
// and parses its JSON result into canonical segments.
package transcribe

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/process"
)

// DefaultLanguage is passed to the engine when none is configured.
const DefaultLanguage = domain.DefaultLanguage

const outputStem = "transcript"

// Result is one successful engine run.
type Result struct {
	Segments []domain.TranscriptSegment
	Schema   string
	Log      CommandLog
	Elapsed  time.Duration
}

// Executor invokes the engine binary as a supervised child process.
type Executor struct {
	binaryPath string
	modelPath  string
	language   string
	runner     process.Runner
	logger     *slog.Logger
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
	readFile   func(name string) ([]byte, error)
}

// NewExecutor constructs an executor bound to one engine binary and model.
func NewExecutor(binaryPath, modelPath, language string, runner process.Runner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		language:   normalizeLanguage(language),
		runner:     runner,
		logger:     logger,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		readFile:   os.ReadFile,
	}
}

// Transcribe runs the engine against audioPath. A non-zero exit returns a
// PipelineError carrying the captured output. When no segment survives
// parsing the error wraps ErrEmptyResult.
func (e *Executor) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if strings.TrimSpace(e.binaryPath) == "" {
		return Result{}, &PipelineError{Stage: StageTranscribing, Message: "engine binary is not available"}
	}
	if strings.TrimSpace(e.modelPath) == "" {
		return Result{}, &PipelineError{Stage: StageTranscribing, Message: "model file is not available"}
	}

	tempDir, err := e.mkdirTemp("", "whispercpp-*")
	if err != nil {
		return Result{}, &PipelineError{Stage: StageTranscribing, Message: "failed to create temporary workspace", Err: err}
	}
	defer func() { _ = e.removeAll(tempDir) }()

	outputBase := filepath.Join(tempDir, outputStem)
	args := buildWhisperArgs(e.modelPath, audioPath, outputBase, e.language)
	e.logger.Info("transcribing", "path", audioPath, "model", e.modelPath)

	res, runErr := e.runner.Run(ctx, process.Spec{Name: e.binaryPath, Args: args})
	log := NewCommandLog(res)
	if runErr != nil {
		msg := "whisper.cpp transcription failed"
		if process.IsCanceled(runErr) {
			msg = "transcription canceled"
		}
		return Result{Log: log}, &PipelineError{Stage: StageTranscribing, Message: msg, CommandLog: log, Err: runErr}
	}

	jsonPath := outputBase + ".json"
	data, err := e.readFile(jsonPath)
	if err != nil {
		return Result{Log: log}, &PipelineError{
			Stage:      StageTranscribing,
			Message:    "whisper.cpp completed but JSON output is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	segments, schema, err := ParseSegments(data)
	if err != nil {
		return Result{Log: log}, &PipelineError{
			Stage:      StageTranscribing,
			Message:    "failed to parse whisper.cpp JSON output",
			CommandLog: log,
			Err:        err,
		}
	}
	if len(segments) == 0 {
		e.logger.Warn("no segments in engine output", "path", audioPath)
		return Result{Log: log}, &PipelineError{
			Stage:      StageTranscribing,
			Message:    "no segments found in whisper.cpp output",
			CommandLog: log,
			Err:        ErrEmptyResult,
		}
	}

	e.logger.Info("transcription completed",
		"path", audioPath,
		"segments", len(segments),
		"schema", schema,
		"elapsed", res.Duration,
	)
	return Result{Segments: segments, Schema: schema, Log: log, Elapsed: res.Duration}, nil
}

// normalizeLanguage falls back to the default language code.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" {
		return DefaultLanguage
	}
	return lang
}

// buildWhisperArgs builds engine args requesting JSON output at outputBase.json.
func buildWhisperArgs(modelPath, audioPath, outputBase, language string) []string {
	return []string{
		"-m", modelPath,
		"-f", audioPath,
		"-l", language,
		"-oj",
		"-of", outputBase,
	}
}

// NewExecutorForTests constructs an executor with injectable filesystem hooks.
func NewExecutorForTests(
	binaryPath string,
	modelPath string,
	language string,
	runner process.Runner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
) *Executor {
	e := NewExecutor(binaryPath, modelPath, language, runner, nil)
	e.mkdirTemp = mkdirTemp
	e.removeAll = removeAll
	return e
}
