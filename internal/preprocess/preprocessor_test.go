package preprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/process"
	"batch-transcriber/internal/transcribe"
)

type fakeRunner struct {
	calls int
	run   func(spec process.Spec) (process.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, spec process.Spec) (process.Result, error) {
	f.calls++
	if f.run == nil {
		return process.Result{Command: spec.Name, Args: spec.Args}, nil
	}
	return f.run(spec)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCachePath(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "talk.whisper.wav"), CachePath(filepath.Join("dir", "talk.mp4")))
	assert.Equal(t, filepath.Join("dir", "talk.whisper.wav"), CachePath(filepath.Join("dir", "talk.whisper.wav")))
	assert.True(t, IsNormalized("/x/A.WHISPER.WAV"))
	assert.False(t, IsNormalized("/x/a.wav"))
}

func TestPrepareTranscodes(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "meeting.mp4")
	writeFile(t, src, "media")

	runner := &fakeRunner{run: func(spec process.Spec) (process.Result, error) {
		writeFile(t, spec.Args[len(spec.Args)-1], "wav")
		return process.Result{Command: spec.Name, Args: spec.Args}, nil
	}}
	p := New("ffmpeg", runner, nil)

	out, err := p.Prepare(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "meeting.whisper.wav"), out)
	assert.Equal(t, 1, runner.calls)

	again, err := p.Prepare(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, 1, runner.calls, "cached output must not be regenerated")
}

func TestPrepareShortCircuitsNormalizedInput(t *testing.T) {
	runner := &fakeRunner{}
	out, err := New("ffmpeg", runner, nil).Prepare(context.Background(), "/a/b.whisper.wav")
	require.NoError(t, err)
	assert.Equal(t, "/a/b.whisper.wav", out)
	assert.Zero(t, runner.calls)
}

func TestPrepareFailureCarriesDiagnostics(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "bad.mkv")
	writeFile(t, src, "media")

	runner := &fakeRunner{run: func(spec process.Spec) (process.Result, error) {
		writeFile(t, spec.Args[len(spec.Args)-1], "partial")
		return process.Result{Command: spec.Name, ExitCode: 1, Stderr: "Invalid data found"}, errors.New("exit status 1")
	}}
	_, err := New("ffmpeg", runner, nil).Prepare(context.Background(), src)

	var pErr *transcribe.PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, transcribe.StagePreprocessing, pErr.Stage)
	assert.Equal(t, "Invalid data found", pErr.Diagnostic())
	assert.NoFileExists(t, CachePath(src), "partial output must be removed")
}

func TestPrepareCanceled(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "long.mp3")
	writeFile(t, src, "media")

	runner := &fakeRunner{run: func(spec process.Spec) (process.Result, error) {
		return process.Result{Command: spec.Name, ExitCode: -1}, fmt.Errorf("ffmpeg: %w", process.ErrCanceled)
	}}
	_, err := New("ffmpeg", runner, nil).Prepare(context.Background(), src)
	assert.True(t, process.IsCanceled(err))
	assert.NoFileExists(t, CachePath(src))
}

func TestPrepareMissingSource(t *testing.T) {
	runner := &fakeRunner{}
	_, err := New("ffmpeg", runner, nil).Prepare(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"))
	require.Error(t, err)
	assert.Zero(t, runner.calls)
}

func TestBuildFFmpegArgs(t *testing.T) {
	want := []string{"-hide_banner", "-nostdin", "-y", "-i", "/in.mp4", "-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le", "/out.whisper.wav"}
	assert.Equal(t, want, buildFFmpegArgs("/in.mp4", "/out.whisper.wav"))
}
