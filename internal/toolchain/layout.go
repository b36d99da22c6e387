package toolchain

import (
	"path/filepath"
	goruntime "runtime"
)

const (
	// EngineRepoURL is the whisper.cpp source cloned when no binary is found.
	EngineRepoURL = "https://github.com/ggml-org/whisper.cpp.git"

	ffmpegURLWindows    = "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.zip"
	ffmpegURLMacOS      = "https://evermeet.cx/ffmpeg/get/zip"
	ffmpegURLLinuxARM64 = "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-arm64-static.tar.xz"
	ffmpegURLLinuxAMD64 = "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-amd64-static.tar.xz"
)

// Layout is where bootstrapped artifacts live under the app data root.
type Layout struct {
	EngineDir string
	ModelsDir string
	FFmpegDir string
	goos      string
}

// LayoutFor derives the artifact directories from dataDir.
func LayoutFor(dataDir string) Layout {
	return Layout{
		EngineDir: filepath.Join(dataDir, "engine", "whisper.cpp"),
		ModelsDir: filepath.Join(dataDir, "models"),
		FFmpegDir: filepath.Join(dataDir, "tools", "ffmpeg"),
		goos:      goruntime.GOOS,
	}
}

func (l Layout) exe(name string) string {
	if l.os() == "windows" {
		return name + ".exe"
	}
	return name
}

func (l Layout) os() string {
	if l.goos == "" {
		return goruntime.GOOS
	}
	return l.goos
}

// LocalBinary is the build output of a local engine checkout.
func (l Layout) LocalBinary() string {
	return filepath.Join(l.EngineDir, "build", "bin", l.exe("whisper-cli"))
}

// LegacyBinary is the pre-rename engine build output.
func (l Layout) LegacyBinary() string {
	return filepath.Join(l.EngineDir, "build", "bin", l.exe("main"))
}

// RepoModelsDir is the models directory bundled inside the engine checkout.
func (l Layout) RepoModelsDir() string {
	return filepath.Join(l.EngineDir, "models")
}

// FFmpegBinary is the locally installed transcoder.
func (l Layout) FFmpegBinary() string {
	return filepath.Join(l.FFmpegDir, l.exe("ffmpeg"))
}

// engineBinaryNames are looked up on PATH, in order, when no local build exists.
var engineBinaryNames = []string{"whisper-cli", "whisper-cli.exe", "main", "main.exe"}

func ffmpegDownloadURL(goos, goarch string) (string, bool) {
	switch goos {
	case "windows":
		return ffmpegURLWindows, goarch == "amd64"
	case "darwin":
		return ffmpegURLMacOS, true
	case "linux":
		switch goarch {
		case "arm64":
			return ffmpegURLLinuxARM64, true
		case "amd64":
			return ffmpegURLLinuxAMD64, true
		}
	}
	return "", false
}
