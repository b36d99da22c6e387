package domain

import (
	"fmt"
	"strings"
)

// ItemStatus tracks one work item, and bootstrap steps, through a run.
type ItemStatus string

const (
	StatusQueued        ItemStatus = "Queued"
	StatusChecking      ItemStatus = "Checking"
	StatusDownloading   ItemStatus = "Downloading"
	StatusBuilding      ItemStatus = "Building"
	StatusPreprocessing ItemStatus = "Preprocessing"
	StatusTranscribing  ItemStatus = "Transcribing"
	StatusDiarizing     ItemStatus = "Diarizing"
	StatusSaving        ItemStatus = "Saving"
	StatusDone          ItemStatus = "Done"
	StatusError         ItemStatus = "Error"
	StatusCanceled      ItemStatus = "Canceled"
	StatusMissing       ItemStatus = "Missing"
	StatusReady         ItemStatus = "Ready"
	StatusFailed        ItemStatus = "Failed"
)

// Terminal reports whether no further transitions are allowed for a work item.
func (s ItemStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCanceled:
		return true
	default:
		return false
	}
}

// WorkItem is one discovered media file and its derived output paths.
type WorkItem struct {
	ID             string     `json:"id"`
	SourcePath     string     `json:"sourcePath"`
	TranscriptPath string     `json:"transcriptPath"`
	CachePath      string     `json:"cachePath"`
	Status         ItemStatus `json:"status"`
	Detail         string     `json:"detail,omitempty"`
}

// OutputFormat selects the extra renderer written next to the TXT transcript.
type OutputFormat string

const (
	OutputTXT  OutputFormat = "txt"
	OutputSRT  OutputFormat = "srt"
	OutputDOCX OutputFormat = "docx"
)

// DiarizationSettings configures the external speaker-diarization command.
type DiarizationSettings struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Command string   `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	InputDir          string              `json:"inputDir" yaml:"input_dir" toml:"input_dir"`
	DataDir           string              `json:"dataDir" yaml:"data_dir" toml:"data_dir"`
	Language          string              `json:"language" yaml:"language" toml:"language"`
	ModelID           string              `json:"modelId,omitempty" yaml:"model_id,omitempty" toml:"model_id,omitempty"`
	OutputFormat      OutputFormat        `json:"outputFormat" yaml:"output_format" toml:"output_format"`
	IncludeTimestamps bool                `json:"includeTimestamps" yaml:"include_timestamps" toml:"include_timestamps"`
	Diarization       DiarizationSettings `json:"diarization" yaml:"diarization" toml:"diarization"`
	ScoreThresholds   map[string]int      `json:"scoreThresholds,omitempty" yaml:"score_thresholds,omitempty" toml:"score_thresholds,omitempty"`
	LogLevel          string              `json:"logLevel" yaml:"log_level" toml:"log_level"`
	LogFile           string              `json:"logFile,omitempty" yaml:"log_file,omitempty" toml:"log_file,omitempty"`
}

// TranscriptSegment is one engine-produced span of recognized text in seconds.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// DiarizationTurn is one interval attributed to a speaker.
type DiarizationTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// AlignedSegment is a transcript span annotated with its best-overlap speaker.
type AlignedSegment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker"`
	Mergeable bool    `json:"mergeable"`
}

// DefaultLanguage is the engine language used when none is configured.
const DefaultLanguage = "en"

// ParseOutputFormat accepts a format name case-insensitively; empty means txt.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OutputTXT:
		return OutputTXT, nil
	case OutputSRT:
		return OutputSRT, nil
	case OutputDOCX:
		return OutputDOCX, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want txt, srt or docx)", raw)
	}
}

// Validate trims free-text fields, fills empty defaults and rejects values
// no component can act on.
func (s *Settings) Validate() error {
	s.InputDir = strings.TrimSpace(s.InputDir)
	s.DataDir = strings.TrimSpace(s.DataDir)
	s.ModelID = strings.TrimSpace(s.ModelID)
	s.LogFile = strings.TrimSpace(s.LogFile)
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	s.Language = strings.TrimSpace(s.Language)
	if s.Language == "" {
		s.Language = DefaultLanguage
	}

	format, err := ParseOutputFormat(string(s.OutputFormat))
	if err != nil {
		return err
	}
	s.OutputFormat = format

	s.Diarization.Command = strings.TrimSpace(s.Diarization.Command)
	if s.Diarization.Enabled && s.Diarization.Command == "" {
		return fmt.Errorf("diarization is enabled but no command is configured")
	}
	for bucket, score := range s.ScoreThresholds {
		if score < 0 {
			return fmt.Errorf("score threshold for %s must not be negative", bucket)
		}
	}
	return nil
}
