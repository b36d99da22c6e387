package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"

	"batch-transcriber/internal/domain"
)

// SettingsFileName is the settings file created under the data root.
const SettingsFileName = "settings.json"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		DataDir:           DefaultDataDir(),
		Language:          domain.DefaultLanguage,
		OutputFormat:      domain.OutputTXT,
		IncludeTimestamps: true,
		LogLevel:          "info",
	}
}

// DefaultDataDir is the per-user root for models, tools, logs and metrics.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return dataDirFor(goruntime.GOOS, os.Getenv, homeDir)
}

func dataDirFor(goos string, getenv func(string) string, homeDir string) string {
	switch goos {
	case "windows":
		if appData := getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "BatchTranscriber")
		}
		return filepath.Join(homeDir, "AppData", "Roaming", "BatchTranscriber")
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "BatchTranscriber")
	default:
		if xdg := getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "batch-transcriber")
		}
		return filepath.Join(homeDir, ".local", "share", "batch-transcriber")
	}
}

// SettingsPath is the default settings file inside dataDir.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, SettingsFileName)
}

// LogDir holds rotated log files.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}
