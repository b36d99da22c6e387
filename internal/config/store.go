package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"batch-transcriber/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

type codec struct {
	marshal   func(domain.Settings) ([]byte, error)
	unmarshal func([]byte, *domain.Settings) error
}

var codecs = map[string]codec{
	".json": {
		marshal: func(cfg domain.Settings) ([]byte, error) {
			return json.MarshalIndent(cfg, "", "  ")
		},
		unmarshal: func(data []byte, cfg *domain.Settings) error {
			return json.Unmarshal(data, cfg)
		},
	},
	".yaml": {
		marshal: func(cfg domain.Settings) ([]byte, error) {
			return yaml.Marshal(cfg)
		},
		unmarshal: func(data []byte, cfg *domain.Settings) error {
			return yaml.Unmarshal(data, cfg)
		},
	},
	".toml": {
		marshal: func(cfg domain.Settings) ([]byte, error) {
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		unmarshal: func(data []byte, cfg *domain.Settings) error {
			return toml.Unmarshal(data, cfg)
		},
	},
}

func init() {
	codecs[".yml"] = codecs[".yaml"]
}

// FileStore persists settings in one file whose extension picks the format:
// .json, .yaml/.yml or .toml.
type FileStore struct {
	path  string
	codec codec
}

// NewFileStore creates a settings store for path.
func NewFileStore(path string) (*FileStore, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c, ok := codecs[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported settings format %q", ext)
	}
	return &FileStore{path: path, codec: c}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing. Fields
// absent from the file keep their default values.
func (s *FileStore) Load() (domain.Settings, error) {
	cfg := DefaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return domain.Settings{}, err
	}

	if err := s.codec.unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save writes settings and creates parent directories.
func (s *FileStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := s.codec.marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}
