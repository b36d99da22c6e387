// Package toolchain acquires the external artifacts a batch needs: the
// whisper.cpp binary, a ggml model file and ffmpeg.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/process"
	"batch-transcriber/internal/selector"
)

// Progress step identifiers reported while bootstrapping.
const (
	StepRepo   = "tool.repo"
	StepBinary = "tool.binary"
	StepFFmpeg = "tool.ffmpeg"
	StepModel  = "model.default"
)

var (
	ErrEngineUnavailable = errors.New("whisper.cpp binary is unavailable")
	ErrModelUnavailable  = errors.New("whisper.cpp model is unavailable")
	ErrFFmpegUnavailable = errors.New("ffmpeg is unavailable")
)

const maxCommandOutput = 500

// ProgressFunc receives one bootstrap step update.
type ProgressFunc func(step string, status domain.ItemStatus, detail string)

// Observer records bootstrap step outcomes.
type Observer interface {
	ObserveBootstrap(step, status string)
}

// Paths are the resolved artifacts a batch runs against.
type Paths struct {
	Binary string `json:"binary"`
	Model  string `json:"model"`
	FFmpeg string `json:"ffmpeg"`
}

// Bootstrapper resolves or acquires the engine binary, model and ffmpeg.
type Bootstrapper struct {
	Layout   Layout
	Runner   process.Runner
	Client   *http.Client
	Logger   *slog.Logger
	Observer Observer

	lookPath func(string) (string, error)
	goarch   string
}

// New creates a Bootstrapper rooted at dataDir.
func New(dataDir string, runner process.Runner, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{
		Layout:   LayoutFor(dataDir),
		Runner:   runner,
		Client:   http.DefaultClient,
		Logger:   logger,
		lookPath: exec.LookPath,
		goarch:   goruntime.GOARCH,
	}
}

// Ensure makes the engine binary, the model and ffmpeg available. Each flow
// runs even when an earlier one failed; the returned error joins every
// missing artifact. Calling it again once artifacts exist does no network or
// build work.
func (b *Bootstrapper) Ensure(ctx context.Context, backend domain.EngineBackend, model domain.ModelSpec, progress ProgressFunc) (Paths, error) {
	var paths Paths
	var errs []error

	binary, err := b.EnsureEngine(ctx, backend, progress)
	if err != nil {
		errs = append(errs, err)
	}
	paths.Binary = binary

	modelPath, err := b.EnsureModel(ctx, model, progress)
	if err != nil {
		errs = append(errs, err)
	}
	paths.Model = modelPath

	ffmpeg, err := b.EnsureFFmpeg(ctx, progress)
	if err != nil {
		errs = append(errs, err)
	}
	paths.FFmpeg = ffmpeg

	return paths, errors.Join(errs...)
}

// ResolveEngine looks for an existing binary without building anything.
func (b *Bootstrapper) ResolveEngine() (string, bool) {
	for _, candidate := range []string{b.Layout.LocalBinary(), b.Layout.LegacyBinary()} {
		if isFile(candidate) {
			return candidate, true
		}
	}
	for _, name := range engineBinaryNames {
		if path, err := b.look(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// EnsureEngine returns an engine binary, cloning and building whisper.cpp
// when none is found.
func (b *Bootstrapper) EnsureEngine(ctx context.Context, backend domain.EngineBackend, progress ProgressFunc) (string, error) {
	repo := b.Layout.EngineDir
	if isDir(repo) {
		b.report(progress, StepRepo, domain.StatusReady, repo)
	} else {
		b.report(progress, StepRepo, domain.StatusMissing, repo)
	}

	if binary, ok := b.ResolveEngine(); ok {
		b.logger().Info("using whisper.cpp binary", "path", binary)
		b.report(progress, StepBinary, domain.StatusReady, binary)
		return binary, nil
	}

	target := b.Layout.LocalBinary()
	b.report(progress, StepRepo, domain.StatusChecking, repo)
	b.report(progress, StepBinary, domain.StatusMissing, target)
	b.logger().Info("whisper.cpp binary not found, bootstrapping", "repo", repo, "backend", backend.Name)

	if err := b.buildEngine(ctx, backend, progress); err != nil {
		b.logger().Error("whisper.cpp bootstrap failed", "error", err)
	}

	if binary, ok := b.ResolveEngine(); ok {
		b.logger().Info("using whisper.cpp binary", "path", binary)
		b.report(progress, StepBinary, domain.StatusReady, binary)
		return binary, nil
	}
	b.report(progress, StepBinary, domain.StatusFailed, target)
	return "", fmt.Errorf("%w: expected %s or one of %s on PATH", ErrEngineUnavailable, target, strings.Join(engineBinaryNames, ", "))
}

func (b *Bootstrapper) buildEngine(ctx context.Context, backend domain.EngineBackend, progress ProgressFunc) error {
	repo := b.Layout.EngineDir
	target := b.Layout.LocalBinary()

	gitBin, err := b.look("git")
	if err != nil {
		b.report(progress, StepRepo, domain.StatusFailed, repo)
		return fmt.Errorf("git is not installed")
	}
	cmakeBin, err := b.look("cmake")
	if err != nil {
		return fmt.Errorf("cmake is not installed")
	}

	if !isDir(repo) {
		if err := os.MkdirAll(filepath.Dir(repo), 0o755); err != nil {
			b.report(progress, StepRepo, domain.StatusFailed, repo)
			return fmt.Errorf("create engine directory: %w", err)
		}
		b.report(progress, StepRepo, domain.StatusDownloading, repo)
		b.logger().Info("cloning whisper.cpp", "url", EngineRepoURL, "path", repo)
		if err := b.runCommand(ctx, "", gitBin, "clone", "--depth", "1", EngineRepoURL, repo); err != nil {
			b.report(progress, StepRepo, domain.StatusFailed, repo)
			return err
		}
	}
	b.report(progress, StepRepo, domain.StatusReady, repo)

	b.report(progress, StepBinary, domain.StatusBuilding, target)
	if err := b.configure(ctx, cmakeBin, backend); err != nil {
		return err
	}
	return b.runCommand(ctx, repo, cmakeBin, "--build", "build", "-j")
}

// configure runs cmake with the backend flags and retries once CPU-only.
func (b *Bootstrapper) configure(ctx context.Context, cmakeBin string, backend domain.EngineBackend) error {
	repo := b.Layout.EngineDir
	flags := backend.CMakeFlags
	if len(flags) == 0 {
		flags = selector.CPUBackend().CMakeFlags
	}
	b.logger().Info("configuring whisper.cpp", "backend", backend.Name, "flags", strings.Join(flags, " "))

	err := b.runCommand(ctx, repo, cmakeBin, append([]string{"-S", ".", "-B", "build"}, flags...)...)
	if err == nil {
		return nil
	}
	if backend.Name == selector.CPUBackend().Name || process.IsCanceled(err) {
		return err
	}

	b.logger().Warn("backend configure failed, retrying CPU-only", "backend", backend.Name, "error", err)
	return b.runCommand(ctx, repo, cmakeBin, append([]string{"-S", ".", "-B", "build"}, selector.CPUBackend().CMakeFlags...)...)
}

// ModelCandidates lists where an existing copy of spec may already live, in
// lookup order.
func (b *Bootstrapper) ModelCandidates(spec domain.ModelSpec) []string {
	stem := strings.TrimSuffix(spec.FileName, filepath.Ext(spec.FileName))
	return []string{
		filepath.Join(b.Layout.ModelsDir, spec.FileName),
		filepath.Join(b.Layout.ModelsDir, stem+".gguf"),
		filepath.Join(b.Layout.RepoModelsDir(), spec.FileName),
	}
}

// ResolveModel returns the first existing candidate for spec.
func (b *Bootstrapper) ResolveModel(spec domain.ModelSpec) (string, bool) {
	for _, candidate := range b.ModelCandidates(spec) {
		if isFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// EnsureModel returns a local model file, downloading spec.URL when absent.
func (b *Bootstrapper) EnsureModel(ctx context.Context, spec domain.ModelSpec, progress ProgressFunc) (string, error) {
	if path, ok := b.ResolveModel(spec); ok {
		b.logger().Info("using whisper.cpp model", "model", spec.ID, "path", path)
		b.report(progress, StepModel, domain.StatusReady, path)
		return path, nil
	}

	destination := filepath.Join(b.Layout.ModelsDir, spec.FileName)
	b.report(progress, StepModel, domain.StatusMissing, destination)
	if strings.TrimSpace(spec.URL) == "" {
		b.report(progress, StepModel, domain.StatusFailed, destination)
		return "", fmt.Errorf("%w: %s has no download URL", ErrModelUnavailable, spec.ID)
	}

	b.report(progress, StepModel, domain.StatusDownloading, destination)
	b.logger().Info("downloading whisper.cpp model", "model", spec.ID, "url", spec.URL, "path", destination)
	if err := downloadURLToFile(ctx, b.Client, destination, spec.URL, modelDownloadTimeout); err != nil {
		b.logger().Error("model download failed", "model", spec.ID, "url", spec.URL, "error", err)
		b.report(progress, StepModel, domain.StatusFailed, destination)
		return "", fmt.Errorf("%w: download %s: %v", ErrModelUnavailable, spec.ID, err)
	}
	b.report(progress, StepModel, domain.StatusReady, destination)
	return destination, nil
}

// ResolveFFmpeg prefers ffmpeg on PATH, then the local tools copy.
func (b *Bootstrapper) ResolveFFmpeg() (string, bool) {
	if path, err := b.look("ffmpeg"); err == nil {
		return path, true
	}
	if local := b.Layout.FFmpegBinary(); isFile(local) {
		return local, true
	}
	return "", false
}

// EnsureFFmpeg returns an ffmpeg binary, downloading a static build when
// none is installed.
func (b *Bootstrapper) EnsureFFmpeg(ctx context.Context, progress ProgressFunc) (string, error) {
	if path, ok := b.ResolveFFmpeg(); ok {
		b.logger().Info("using ffmpeg", "path", path)
		b.report(progress, StepFFmpeg, domain.StatusReady, path)
		return path, nil
	}

	target := b.Layout.FFmpegBinary()
	b.report(progress, StepFFmpeg, domain.StatusMissing, target)
	url, ok := ffmpegDownloadURL(b.Layout.os(), b.arch())
	if !ok {
		b.report(progress, StepFFmpeg, domain.StatusFailed, target)
		return "", fmt.Errorf("%w: no static build for %s/%s", ErrFFmpegUnavailable, b.Layout.os(), b.arch())
	}

	b.report(progress, StepFFmpeg, domain.StatusDownloading, url)
	if err := b.installFFmpeg(ctx, url, target); err != nil {
		b.logger().Error("ffmpeg install failed", "url", url, "error", err)
		b.report(progress, StepFFmpeg, domain.StatusFailed, target)
		return "", fmt.Errorf("%w: %v", ErrFFmpegUnavailable, err)
	}
	b.logger().Info("ffmpeg saved", "path", target)
	b.report(progress, StepFFmpeg, domain.StatusReady, target)
	return target, nil
}

func (b *Bootstrapper) installFFmpeg(ctx context.Context, url, target string) error {
	if err := os.MkdirAll(b.Layout.FFmpegDir, 0o755); err != nil {
		return fmt.Errorf("create tools directory: %w", err)
	}
	workDir, err := os.MkdirTemp(b.Layout.FFmpegDir, "download-*")
	if err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	archivePath := filepath.Join(workDir, "ffmpeg-archive")
	if err := downloadURLToFile(ctx, b.Client, archivePath, url, ffmpegDownloadTimeout); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	extractDir := filepath.Join(workDir, "extract")
	if err := extractArchive(archivePath, extractDir); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	found, err := findFile(extractDir, filepath.Base(target))
	if err != nil {
		return err
	}
	return copyExecutable(found, target)
}

func (b *Bootstrapper) runCommand(ctx context.Context, dir, name string, args ...string) error {
	if b.Runner == nil {
		return fmt.Errorf("no command runner configured")
	}
	result, err := b.Runner.Run(ctx, process.Spec{Name: name, Args: args, Dir: dir})
	if err == nil {
		return nil
	}
	if process.IsCanceled(err) {
		return err
	}
	output := trimOutput(result.Diagnostic())
	b.logger().Error("command failed", "command", formatCommand(name, args), "output", output)
	if output == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, output)
}

func (b *Bootstrapper) report(progress ProgressFunc, step string, status domain.ItemStatus, detail string) {
	if progress != nil {
		progress(step, status, detail)
	}
	if b.Observer != nil {
		b.Observer.ObserveBootstrap(step, string(status))
	}
}

func (b *Bootstrapper) look(name string) (string, error) {
	if b.lookPath == nil {
		return exec.LookPath(name)
	}
	return b.lookPath(name)
}

func (b *Bootstrapper) arch() string {
	if b.goarch == "" {
		return goruntime.GOARCH
	}
	return b.goarch
}

func (b *Bootstrapper) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// CommandAvailable reports whether name resolves on PATH.
func CommandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func formatCommand(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func trimOutput(output string) string {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) > maxCommandOutput {
		trimmed = trimmed[:maxCommandOutput] + "..."
	}
	return trimmed
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return closeErr
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// NewForTests builds a Bootstrapper with injected host lookups.
func NewForTests(layout Layout, goos, goarch string, runner process.Runner, client *http.Client, lookPath func(string) (string, error)) *Bootstrapper {
	layout.goos = goos
	return &Bootstrapper{
		Layout:   layout,
		Runner:   runner,
		Client:   client,
		lookPath: lookPath,
		goarch:   goarch,
	}
}
