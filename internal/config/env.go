package config

import (
	"os"
	"strings"

	"batch-transcriber/internal/domain"
)

// Environment variables overlaid onto stored settings.
const (
	EnvDataDir      = "BATCH_TRANSCRIBER_DATA_DIR"
	EnvLanguage     = "BATCH_TRANSCRIBER_LANGUAGE"
	EnvModel        = "BATCH_TRANSCRIBER_MODEL"
	EnvOutputFormat = "BATCH_TRANSCRIBER_OUTPUT_FORMAT"
	EnvLogLevel     = "BATCH_TRANSCRIBER_LOG_LEVEL"
	EnvLogFile      = "BATCH_TRANSCRIBER_LOG_FILE"
	EnvDiarizeCmd   = "BATCH_TRANSCRIBER_DIARIZE_CMD"
)

// EnvLoader applies environment overrides. Tests can override Lookup to
// inject deterministic maps.
type EnvLoader struct {
	Lookup func(string) (string, bool)
}

// Apply overlays the environment onto cfg and validates the result.
func (l EnvLoader) Apply(cfg domain.Settings) (domain.Settings, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	overrideString(l.Lookup, EnvDataDir, &cfg.DataDir)
	overrideString(l.Lookup, EnvLanguage, &cfg.Language)
	overrideString(l.Lookup, EnvModel, &cfg.ModelID)
	overrideString(l.Lookup, EnvLogLevel, &cfg.LogLevel)
	overrideString(l.Lookup, EnvLogFile, &cfg.LogFile)

	format := string(cfg.OutputFormat)
	overrideString(l.Lookup, EnvOutputFormat, &format)
	cfg.OutputFormat = domain.OutputFormat(format)

	if value, ok := l.Lookup(EnvDiarizeCmd); ok && strings.TrimSpace(value) != "" {
		cfg.Diarization.Enabled = true
		cfg.Diarization.Command = strings.TrimSpace(value)
	}

	if err := cfg.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return cfg, nil
}

// Load reads store and applies environment overrides.
func (l EnvLoader) Load(store Store) (domain.Settings, error) {
	cfg, err := store.Load()
	if err != nil {
		return domain.Settings{}, err
	}
	return l.Apply(cfg)
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}
