package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/domain"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

// TestEnvLoaderOverrides verifies every supported variable is applied.
func TestEnvLoaderOverrides(t *testing.T) {
	loader := EnvLoader{Lookup: lookupFrom(map[string]string{
		EnvDataDir:      " /srv/bt ",
		EnvLanguage:     "es",
		EnvModel:        "medium.en",
		EnvOutputFormat: "DOCX",
		EnvLogLevel:     "WARN",
		EnvLogFile:      "/tmp/bt.log",
		EnvDiarizeCmd:   "pyannote-cli",
	})}

	cfg, err := loader.Apply(DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "/srv/bt", cfg.DataDir)
	assert.Equal(t, "es", cfg.Language)
	assert.Equal(t, "medium.en", cfg.ModelID)
	assert.Equal(t, domain.OutputDOCX, cfg.OutputFormat)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/tmp/bt.log", cfg.LogFile)
	assert.True(t, cfg.Diarization.Enabled)
	assert.Equal(t, "pyannote-cli", cfg.Diarization.Command)
}

// TestEnvLoaderBlankValuesIgnored checks that empty variables do not clear settings.
func TestEnvLoaderBlankValuesIgnored(t *testing.T) {
	base := DefaultSettings()
	base.Language = "it"
	loader := EnvLoader{Lookup: lookupFrom(map[string]string{EnvLanguage: "  "})}

	cfg, err := loader.Apply(base)
	require.NoError(t, err)
	assert.Equal(t, "it", cfg.Language)
}

// TestEnvLoaderRejectsUnknownFormat checks validation after overrides.
func TestEnvLoaderRejectsUnknownFormat(t *testing.T) {
	loader := EnvLoader{Lookup: lookupFrom(map[string]string{EnvOutputFormat: "pdf"})}
	_, err := loader.Apply(DefaultSettings())
	assert.Error(t, err)
}

// TestEnvLoaderLoadUsesStore checks the store is read before overrides.
func TestEnvLoaderLoadUsesStore(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Language: "pt", OutputFormat: domain.OutputSRT}}
	cfg, err := EnvLoader{Lookup: lookupFrom(nil)}.Load(store)
	require.NoError(t, err)
	assert.Equal(t, "pt", cfg.Language)
	assert.Equal(t, domain.OutputSRT, cfg.OutputFormat)
}

type fakeStore struct {
	settings domain.Settings
	err      error
}

func (f *fakeStore) Load() (domain.Settings, error) { return f.settings, f.err }
func (f *fakeStore) Save(s domain.Settings) error  { f.settings = s; return f.err }
