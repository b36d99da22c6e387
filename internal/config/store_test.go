package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, domain.OutputTXT, cfg.OutputFormat)
	assert.True(t, cfg.IncludeTimestamps)
	assert.NotEmpty(t, cfg.DataDir)
}

// TestDataDirFor checks the per-OS data root.
func TestDataDirFor(t *testing.T) {
	env := map[string]string{}
	getenv := func(key string) string { return env[key] }
	home := filepath.Join("home", "u")

	assert.Equal(t, filepath.Join(home, "Library", "Application Support", "BatchTranscriber"), dataDirFor("darwin", getenv, home))
	assert.Equal(t, filepath.Join(home, ".local", "share", "batch-transcriber"), dataDirFor("linux", getenv, home))

	env["XDG_DATA_HOME"] = filepath.Join("xdg")
	assert.Equal(t, filepath.Join("xdg", "batch-transcriber"), dataDirFor("linux", getenv, home))

	env["APPDATA"] = filepath.Join("roaming")
	assert.Equal(t, filepath.Join("roaming", "BatchTranscriber"), dataDirFor("windows", getenv, home))
}

// TestFileStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestFileStoreLoadMissingReturnsDefaults(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "missing", "settings.json"))
	require.NoError(t, err)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)
}

// TestFileStoreRoundTripPerFormat checks persisted settings fidelity for
// every supported codec.
func TestFileStoreRoundTripPerFormat(t *testing.T) {
	want := domain.Settings{
		InputDir:          "/media/in",
		DataDir:           "/data",
		Language:          "de",
		ModelID:           "small.en",
		OutputFormat:      domain.OutputSRT,
		IncludeTimestamps: false,
		Diarization: domain.DiarizationSettings{
			Enabled: true,
			Command: "diarize",
			Args:    []string{"--in", "{input}", "--out", "{output}"},
		},
		ScoreThresholds: map[string]int{"8-15": 12},
		LogLevel:        "debug",
		LogFile:         "/data/logs/app.log",
	}

	for _, name := range []string{"settings.json", "settings.yaml", "settings.yml", "settings.toml"} {
		t.Run(name, func(t *testing.T) {
			store, err := NewFileStore(filepath.Join(t.TempDir(), "cfg", name))
			require.NoError(t, err)
			require.NoError(t, store.Save(want))

			got, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

// TestFileStorePartialFileKeepsDefaults checks that absent keys fall back.
func TestFileStorePartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: fr\n"), 0o644))
	store, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fr", got.Language)
	assert.True(t, got.IncludeTimestamps)
	assert.Equal(t, domain.OutputTXT, got.OutputFormat)
}

// TestFileStoreLoadInvalidContent checks parse error handling.
func TestFileStoreLoadInvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not-json"), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Load()
	assert.Error(t, err)
}

// TestNewFileStoreRejectsUnknownExtension checks codec selection.
func TestNewFileStoreRejectsUnknownExtension(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "settings.ini"))
	assert.Error(t, err)
}
