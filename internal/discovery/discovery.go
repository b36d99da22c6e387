// Package discovery finds media files under a root directory and filters out
// work that is already done or would duplicate another item.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/preprocess"
)

const legacyTranscriptSuffix = ".transcript.txt"

var supportedExtensions = map[string]struct{}{}

func init() {
	for _, ext := range []string{
		// audio
		".aac", ".ac3", ".aif", ".aifc", ".aiff", ".alac", ".amr", ".ape", ".au",
		".caf", ".dts", ".eac3", ".flac", ".gsm", ".m4a", ".m4b", ".m4p", ".mid",
		".midi", ".mod", ".mp2", ".mp3", ".mpa", ".mpc", ".oga", ".ogg", ".opus",
		".ra", ".ram", ".s3m", ".spx", ".tak", ".tta", ".voc", ".wav", ".weba",
		".wma", ".wv", ".xm",
		// containers with audio tracks
		".3g2", ".3gp", ".asf", ".avi", ".divx", ".f4v", ".flv", ".m2ts", ".m2v",
		".m4v", ".mkv", ".mov", ".mp4", ".mpe", ".mpeg", ".mpg", ".mts", ".mxf",
		".ogm", ".ogv", ".qt", ".rm", ".rmvb", ".ts", ".vob", ".webm", ".wmv",
	} {
		supportedExtensions[ext] = struct{}{}
	}
}

// IsSupported reports whether path has an audio or audio-bearing extension.
func IsSupported(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedExtensions returns the extension set as a slice.
func SupportedExtensions() []string {
	out := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		out = append(out, ext)
	}
	return out
}

// originalStem strips the extension and, for normalized audio, the reserved suffix.
func originalStem(path string) string {
	base := filepath.Base(path)
	if preprocess.IsNormalized(path) {
		return base[:len(base)-len(preprocess.NormalizedSuffix)]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TranscriptPath returns the derived .txt output path for a source file.
func TranscriptPath(source string) string {
	return filepath.Join(filepath.Dir(source), originalStem(source)+".txt")
}

// LegacyTranscriptPath returns the older .transcript.txt naming.
func LegacyTranscriptPath(source string) string {
	return filepath.Join(filepath.Dir(source), originalStem(source)+legacyTranscriptSuffix)
}

// Resolver walks input roots with injectable filesystem access.
type Resolver struct {
	logger *slog.Logger
	stat   func(string) (os.FileInfo, error)
	walk   func(root string, fn fs.WalkDirFunc) error
	newID  func() string
}

// NewResolver builds a resolver over the real filesystem.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		logger: logger,
		stat:   os.Stat,
		walk:   filepath.WalkDir,
		newID:  uuid.NewString,
	}
}

// TranscriptExists reports whether either transcript naming exists on disk.
func (r *Resolver) TranscriptExists(source string) bool {
	for _, p := range []string{TranscriptPath(source), LegacyTranscriptPath(source)} {
		if info, err := r.stat(p); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// Discover returns pending work items under root in walk order.
func (r *Resolver) Discover(root string) ([]domain.WorkItem, error) {
	info, err := r.stat(root)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path is not a directory: %s", root)
	}

	var items []domain.WorkItem
	claimed := map[string]struct{}{}
	err = r.walk(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			r.logger.Warn("skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsSupported(path) {
			return nil
		}

		if r.hasOriginalSibling(path) {
			r.logger.Debug("skipping normalized copy, original exists", "path", path)
			return nil
		}

		transcript := TranscriptPath(path)
		if _, dup := claimed[transcript]; dup {
			r.logger.Debug("skipping duplicate transcript target", "path", path, "transcript", transcript)
			return nil
		}
		if r.TranscriptExists(path) {
			r.logger.Info("skipping, transcript already exists", "path", path, "transcript", transcript)
			return nil
		}

		claimed[transcript] = struct{}{}
		items = append(items, domain.WorkItem{
			ID:             r.newID(),
			SourcePath:     path,
			TranscriptPath: transcript,
			CachePath:      preprocess.CachePath(path),
			Status:         domain.StatusQueued,
		})
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	r.logger.Info("pending transcription files discovered", "root", root, "count", len(items))
	return items, nil
}

// hasOriginalSibling reports whether a normalized file has a source next to it.
func (r *Resolver) hasOriginalSibling(path string) bool {
	if !preprocess.IsNormalized(path) {
		return false
	}
	stem := originalStem(path)
	dir := filepath.Dir(path)
	for ext := range supportedExtensions {
		candidate := filepath.Join(dir, stem+ext)
		if candidate == path {
			continue
		}
		if info, err := r.stat(candidate); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// NewResolverForTests builds a resolver with deterministic ids.
func NewResolverForTests(newID func() string) *Resolver {
	r := NewResolver(nil)
	r.newID = newID
	return r
}
