package transcribe

import (
	"errors"
	"fmt"

	"batch-transcriber/internal/process"
)

// Stage names carried by PipelineError.
const (
	StagePreprocessing = "preprocessing"
	StageTranscribing  = "transcribing"
	StageDiarizing     = "diarizing"
	StageSaving        = "saving"
)

// ErrEmptyResult is returned when the engine succeeded but no segment had text.
var ErrEmptyResult = errors.New("transcription produced no segments")

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// NewCommandLog converts a supervised child result into a log record.
func NewCommandLog(res process.Result) CommandLog {
	return CommandLog{
		Command:  res.Command,
		Args:     res.Args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and progress detail.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Diagnostic returns the captured child output, stderr first.
func (e *PipelineError) Diagnostic() string {
	if e == nil {
		return ""
	}
	return process.Result{Stdout: e.CommandLog.Stdout, Stderr: e.CommandLog.Stderr}.Diagnostic()
}
