// Package diarize defines the speaker-diarization collaborator contract.
package diarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/process"
)

// Diarizer returns speaker turns for a normalized audio file. A nil slice
// with a nil error means diarization is unavailable for this input.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]domain.DiarizationTurn, error)
}

// Noop never produces turns.
type Noop struct{}

// Diarize implements Diarizer.
func (Noop) Diarize(context.Context, string) ([]domain.DiarizationTurn, error) { return nil, nil }

// Placeholders substituted into Command arguments.
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// Command runs an external diarization tool under the process supervisor.
// The tool must write {"diarization":[{"start":s,"end":e,"speaker":"S"}]} to
// the {output} path, or to stdout when no argument references {output}.
type Command struct {
	Name   string
	Args   []string
	runner process.Runner
	logger *slog.Logger
}

// NewCommand builds a command diarizer. Empty args default to "{input} {output}".
func NewCommand(name string, args []string, runner process.Runner, logger *slog.Logger) *Command {
	if len(args) == 0 {
		args = []string{InputPlaceholder, OutputPlaceholder}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{Name: name, Args: args, runner: runner, logger: logger}
}

// Diarize implements Diarizer.
func (c *Command) Diarize(ctx context.Context, audioPath string) ([]domain.DiarizationTurn, error) {
	tempDir, err := os.MkdirTemp("", "diarize-*")
	if err != nil {
		return nil, fmt.Errorf("create diarization workspace: %w", err)
	}
	defer os.RemoveAll(tempDir)

	outPath := filepath.Join(tempDir, "diarization.json")
	args, usesOutput := expandArgs(c.Args, audioPath, outPath)

	res, err := c.runner.Run(ctx, process.Spec{Name: c.Name, Args: args})
	if err != nil {
		if process.IsCanceled(err) {
			return nil, err
		}
		return nil, fmt.Errorf("diarization command failed: %w (%s)", err, res.Diagnostic())
	}

	data := []byte(res.Stdout)
	if usesOutput {
		data, err = os.ReadFile(outPath)
		if err != nil {
			return nil, fmt.Errorf("read diarization output: %w", err)
		}
	}

	turns, err := ParseTurns(data)
	if err != nil {
		return nil, err
	}
	c.logger.Info("diarization completed", "path", audioPath, "turns", len(turns))
	return turns, nil
}

func expandArgs(args []string, input, output string) ([]string, bool) {
	out := make([]string, len(args))
	usesOutput := false
	for i, arg := range args {
		if strings.Contains(arg, OutputPlaceholder) {
			usesOutput = true
		}
		arg = strings.ReplaceAll(arg, InputPlaceholder, input)
		out[i] = strings.ReplaceAll(arg, OutputPlaceholder, output)
	}
	return out, usesOutput
}

type turnsPayload struct {
	Diarization []domain.DiarizationTurn `json:"diarization"`
}

// ParseTurns decodes a diarization payload, dropping empty or inverted turns,
// and orders turns by start time.
func ParseTurns(data []byte) ([]domain.DiarizationTurn, error) {
	var payload turnsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode diarization output: %w", err)
	}
	turns := make([]domain.DiarizationTurn, 0, len(payload.Diarization))
	for _, t := range payload.Diarization {
		if t.End <= t.Start {
			continue
		}
		t.Speaker = strings.TrimSpace(t.Speaker)
		if t.Speaker == "" {
			t.Speaker = "UNKNOWN"
		}
		turns = append(turns, t)
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })
	return turns, nil
}
