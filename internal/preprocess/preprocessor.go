// Package preprocess normalizes media to the engine's mono 16 kHz PCM WAV input.
package preprocess

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"batch-transcriber/internal/process"
	"batch-transcriber/internal/transcribe"
)

// NormalizedSuffix is appended to the source stem for cached normalized audio.
const NormalizedSuffix = ".whisper.wav"

// IsNormalized reports whether path already follows the normalized naming.
func IsNormalized(path string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), NormalizedSuffix)
}

// CachePath returns the deterministic normalized-audio path for a source file.
func CachePath(source string) string {
	if IsNormalized(source) {
		return source
	}
	dir := filepath.Dir(source)
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+NormalizedSuffix)
}

// Preprocessor transcodes media with ffmpeg, reusing cached output.
type Preprocessor struct {
	ffmpegPath string
	runner     process.Runner
	logger     *slog.Logger
	stat       func(string) (os.FileInfo, error)
	remove     func(string) error
}

// New constructs a preprocessor bound to one ffmpeg binary.
func New(ffmpegPath string, runner process.Runner, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		logger:     logger,
		stat:       os.Stat,
		remove:     os.Remove,
	}
}

// Prepare returns the normalized audio path for source. It short-circuits when
// source is already normalized or the cached output exists. A canceled or
// failed transcode removes any partial output.
func (p *Preprocessor) Prepare(ctx context.Context, source string) (string, error) {
	if IsNormalized(source) {
		p.logger.Debug("input already normalized", "path", source)
		return source, nil
	}

	out := CachePath(source)
	if info, err := p.stat(out); err == nil && !info.IsDir() && info.Size() > 0 {
		p.logger.Info("reusing normalized audio", "path", out)
		return out, nil
	}

	if _, err := p.stat(source); err != nil {
		return "", &transcribe.PipelineError{
			Stage:   transcribe.StagePreprocessing,
			Message: "cannot access input media: " + source,
			Err:     err,
		}
	}

	args := buildFFmpegArgs(source, out)
	p.logger.Info("preprocessing", "path", source, "output", out)
	res, err := p.runner.Run(ctx, process.Spec{Name: p.ffmpegPath, Args: args})
	log := transcribe.NewCommandLog(res)
	if err != nil {
		p.discard(out)
		msg := "ffmpeg audio conversion failed"
		if process.IsCanceled(err) {
			msg = "preprocessing canceled"
		}
		return "", &transcribe.PipelineError{
			Stage:      transcribe.StagePreprocessing,
			Message:    msg,
			CommandLog: log,
			Err:        err,
		}
	}

	if _, err := p.stat(out); err != nil {
		return "", &transcribe.PipelineError{
			Stage:      transcribe.StagePreprocessing,
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}
	return out, nil
}

func (p *Preprocessor) discard(path string) {
	if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("remove partial output", "path", path, "error", err)
	}
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}
