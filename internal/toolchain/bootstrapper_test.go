package toolchain

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/process"
	"batch-transcriber/internal/selector"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []process.Spec
	run   func(spec process.Spec) (process.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, spec process.Spec) (process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()
	if f.run == nil {
		return process.Result{}, nil
	}
	return f.run(spec)
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = filepath.Base(c.Name) + " " + strings.Join(c.Args, " ")
	}
	return out
}

// handlerTransport answers every request with h, whatever the host.
type handlerTransport struct {
	h    http.Handler
	mu   sync.Mutex
	hits []string
}

func (t *handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.hits = append(t.hits, req.URL.String())
	t.mu.Unlock()
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

type progressLog struct {
	mu     sync.Mutex
	events []string
}

func (p *progressLog) record(step string, status domain.ItemStatus, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, step+"="+string(status))
}

func lookPathFrom(found map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if path, ok := found[name]; ok {
			return path, nil
		}
		return "", exec.ErrNotFound
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func testModel() domain.ModelSpec {
	spec, _ := selector.ModelByID("base.en")
	return spec
}

func cudaBackend() domain.EngineBackend {
	return selector.SelectBackend(domain.HardwareProfile{Accelerator: domain.AcceleratorCUDA})
}

func TestEnsureEngineUsesExistingLocalBuild(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	writeFile(t, layout.LocalBinary(), "bin")
	runner := &fakeRunner{}
	b := NewForTests(layout, "linux", "amd64", runner, nil, lookPathFrom(nil))

	var progress progressLog
	path, err := b.EnsureEngine(context.Background(), cudaBackend(), progress.record)
	require.NoError(t, err)
	assert.Equal(t, layout.LocalBinary(), path)
	assert.Empty(t, runner.calls)
	assert.Contains(t, progress.events, "tool.binary=Ready")
}

func TestEnsureEngineFallsBackToPath(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	b := NewForTests(layout, "linux", "amd64", &fakeRunner{}, nil, lookPathFrom(map[string]string{"main": "/usr/bin/main"}))

	path, err := b.EnsureEngine(context.Background(), selector.CPUBackend(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/main", path)
}

func TestEnsureEngineClonesAndBuilds(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	runner := &fakeRunner{}
	runner.run = func(spec process.Spec) (process.Result, error) {
		switch {
		case spec.Name == "/usr/bin/git":
			require.NoError(t, os.MkdirAll(layout.EngineDir, 0o755))
		case len(spec.Args) > 0 && spec.Args[0] == "--build":
			writeFile(t, layout.LocalBinary(), "bin")
		}
		return process.Result{}, nil
	}
	b := NewForTests(layout, "linux", "amd64", runner, nil, lookPathFrom(map[string]string{"git": "/usr/bin/git", "cmake": "/usr/bin/cmake"}))

	var progress progressLog
	path, err := b.EnsureEngine(context.Background(), cudaBackend(), progress.record)
	require.NoError(t, err)
	assert.Equal(t, layout.LocalBinary(), path)

	cmds := runner.commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, "git clone --depth 1 "+EngineRepoURL+" "+layout.EngineDir, cmds[0])
	assert.Equal(t, "cmake -S . -B build -DGGML_CUDA=OFF -DGGML_METAL=OFF -DGGML_VULKAN=OFF -DGGML_CUDA=ON", cmds[1])
	assert.Equal(t, "cmake --build build -j", cmds[2])
	assert.Equal(t, layout.EngineDir, runner.calls[1].Dir)

	assert.Equal(t, []string{
		"tool.repo=Missing",
		"tool.repo=Checking",
		"tool.binary=Missing",
		"tool.repo=Downloading",
		"tool.repo=Ready",
		"tool.binary=Building",
		"tool.binary=Ready",
	}, progress.events)
}

func TestEnsureEngineRetriesConfigureCPUOnly(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	require.NoError(t, os.MkdirAll(layout.EngineDir, 0o755))
	runner := &fakeRunner{}
	runner.run = func(spec process.Spec) (process.Result, error) {
		if strings.Contains(strings.Join(spec.Args, " "), "-DGGML_CUDA=ON") {
			return process.Result{Stderr: "CUDA toolkit not found"}, errors.New("exit status 1")
		}
		if spec.Args[0] == "--build" {
			writeFile(t, layout.LocalBinary(), "bin")
		}
		return process.Result{}, nil
	}
	b := NewForTests(layout, "linux", "amd64", runner, nil, lookPathFrom(map[string]string{"git": "git", "cmake": "cmake"}))

	_, err := b.EnsureEngine(context.Background(), cudaBackend(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cmake -S . -B build -DGGML_CUDA=OFF -DGGML_METAL=OFF -DGGML_VULKAN=OFF -DGGML_CUDA=ON",
		"cmake -S . -B build -DGGML_CUDA=OFF -DGGML_METAL=OFF -DGGML_VULKAN=OFF",
		"cmake --build build -j",
	}, runner.commands())
}

func TestEnsureEngineNoRetryForCPUBackend(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	require.NoError(t, os.MkdirAll(layout.EngineDir, 0o755))
	runner := &fakeRunner{run: func(process.Spec) (process.Result, error) {
		return process.Result{Stderr: "no compiler"}, errors.New("exit status 1")
	}}
	b := NewForTests(layout, "linux", "amd64", runner, nil, lookPathFrom(map[string]string{"git": "git", "cmake": "cmake"}))

	var progress progressLog
	_, err := b.EnsureEngine(context.Background(), selector.CPUBackend(), progress.record)
	require.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Len(t, runner.calls, 1)
	assert.Equal(t, "tool.binary=Failed", progress.events[len(progress.events)-1])
}

func TestEnsureEngineWithoutGit(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	runner := &fakeRunner{}
	b := NewForTests(layout, "linux", "amd64", runner, nil, lookPathFrom(nil))

	var progress progressLog
	_, err := b.EnsureEngine(context.Background(), selector.CPUBackend(), progress.record)
	require.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Empty(t, runner.calls)
	assert.Contains(t, progress.events, "tool.repo=Failed")
}

func TestEnsureModelFindsAlternateFormat(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	alt := filepath.Join(layout.ModelsDir, "ggml-base.en.gguf")
	writeFile(t, alt, "weights")
	transport := &handlerTransport{h: http.NotFoundHandler()}
	b := NewForTests(layout, "linux", "amd64", nil, &http.Client{Transport: transport}, lookPathFrom(nil))

	path, err := b.EnsureModel(context.Background(), testModel(), nil)
	require.NoError(t, err)
	assert.Equal(t, alt, path)
	assert.Empty(t, transport.hits)
}

func TestEnsureModelFindsBundledRepoCopy(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	bundled := filepath.Join(layout.RepoModelsDir(), "ggml-base.en.bin")
	writeFile(t, bundled, "weights")
	b := NewForTests(layout, "linux", "amd64", nil, nil, lookPathFrom(nil))

	path, err := b.EnsureModel(context.Background(), testModel(), nil)
	require.NoError(t, err)
	assert.Equal(t, bundled, path)
}

func TestEnsureModelDownloadsAtomically(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	transport := &handlerTransport{h: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ggml weights"))
	})}
	b := NewForTests(layout, "linux", "amd64", nil, &http.Client{Transport: transport}, lookPathFrom(nil))

	var progress progressLog
	path, err := b.EnsureModel(context.Background(), testModel(), progress.record)
	require.NoError(t, err)

	want := filepath.Join(layout.ModelsDir, "ggml-base.en.bin")
	assert.Equal(t, want, path)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "ggml weights", string(data))
	assert.NoFileExists(t, want+".tmp")
	assert.Equal(t, []string{testModel().URL}, transport.hits)
	assert.Equal(t, []string{"model.default=Missing", "model.default=Downloading", "model.default=Ready"}, progress.events)
}

func TestEnsureModelDownloadFailureLeavesNothing(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	transport := &handlerTransport{h: http.NotFoundHandler()}
	b := NewForTests(layout, "linux", "amd64", nil, &http.Client{Transport: transport}, lookPathFrom(nil))

	var progress progressLog
	_, err := b.EnsureModel(context.Background(), testModel(), progress.record)
	require.ErrorIs(t, err, ErrModelUnavailable)

	want := filepath.Join(layout.ModelsDir, "ggml-base.en.bin")
	assert.NoFileExists(t, want)
	assert.NoFileExists(t, want+".tmp")
	assert.Equal(t, "model.default=Failed", progress.events[len(progress.events)-1])
}

func tarXZ(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(xw)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, xw.Close())
	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestEnsureFFmpegPrefersPath(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	b := NewForTests(layout, "linux", "amd64", nil, nil, lookPathFrom(map[string]string{"ffmpeg": "/usr/bin/ffmpeg"}))

	path, err := b.EnsureFFmpeg(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/ffmpeg", path)
}

func TestEnsureFFmpegInstallsLinuxStaticBuild(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	archive := tarXZ(t, map[string]string{
		"ffmpeg-7.0-amd64-static/ffprobe": "probe",
		"ffmpeg-7.0-amd64-static/ffmpeg":  "ffmpeg-binary",
	})
	transport := &handlerTransport{h: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})}
	b := NewForTests(layout, "linux", "amd64", nil, &http.Client{Transport: transport}, lookPathFrom(nil))

	path, err := b.EnsureFFmpeg(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, layout.FFmpegBinary(), path)
	assert.Equal(t, []string{ffmpegURLLinuxAMD64}, transport.hits)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg-binary", string(data))

	entries, err := os.ReadDir(layout.FFmpegDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "download workspace should be removed")
}

func TestEnsureFFmpegInstallsMacZip(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	archive := zipArchive(t, map[string]string{"ffmpeg": "mac-ffmpeg"})
	transport := &handlerTransport{h: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})}
	b := NewForTests(layout, "darwin", "arm64", nil, &http.Client{Transport: transport}, lookPathFrom(nil))

	path, err := b.EnsureFFmpeg(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ffmpegURLMacOS}, transport.hits)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mac-ffmpeg", string(data))
}

func TestEnsureFFmpegUnsupportedPlatform(t *testing.T) {
	b := NewForTests(LayoutFor(t.TempDir()), "freebsd", "amd64", nil, nil, lookPathFrom(nil))
	_, err := b.EnsureFFmpeg(context.Background(), nil)
	assert.ErrorIs(t, err, ErrFFmpegUnavailable)
}

func TestEnsureIsIdempotent(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	runner := &fakeRunner{}
	runner.run = func(spec process.Spec) (process.Result, error) {
		if spec.Name == "git" {
			require.NoError(t, os.MkdirAll(layout.EngineDir, 0o755))
		}
		if len(spec.Args) > 0 && spec.Args[0] == "--build" {
			writeFile(t, layout.LocalBinary(), "bin")
		}
		return process.Result{}, nil
	}
	transport := &handlerTransport{h: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("weights"))
	})}
	b := NewForTests(layout, "linux", "amd64", runner, &http.Client{Transport: transport},
		lookPathFrom(map[string]string{"git": "git", "cmake": "cmake", "ffmpeg": "/usr/bin/ffmpeg"}))

	first, err := b.Ensure(context.Background(), selector.CPUBackend(), testModel(), nil)
	require.NoError(t, err)
	calls, hits := len(runner.calls), len(transport.hits)

	second, err := b.Ensure(context.Background(), selector.CPUBackend(), testModel(), nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, runner.calls, calls)
	assert.Len(t, transport.hits, hits)
}

func TestEnsureJoinsFailures(t *testing.T) {
	layout := LayoutFor(t.TempDir())
	transport := &handlerTransport{h: http.NotFoundHandler()}
	b := NewForTests(layout, "linux", "amd64", &fakeRunner{}, &http.Client{Transport: transport},
		lookPathFrom(map[string]string{"ffmpeg": "/usr/bin/ffmpeg"}))

	paths, err := b.Ensure(context.Background(), selector.CPUBackend(), testModel(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, "/usr/bin/ffmpeg", paths.FFmpeg)
}

func TestSafeTargetRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	_, err := safeTarget(base, "../evil")
	assert.Error(t, err)

	target, err := safeTarget(base, "bin/ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "bin", "ffmpeg"), target)

	target, err = safeTarget(base, "./")
	require.NoError(t, err)
	assert.Empty(t, target)
}
