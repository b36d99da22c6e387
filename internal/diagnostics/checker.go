package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"batch-transcriber/internal/domain"
)

// Diagnostic item ids.
const (
	ItemFFmpeg   = "tool_ffmpeg"
	ItemEngine   = "tool_whisper-cli"
	ItemGit      = "tool_git"
	ItemCMake    = "tool_cmake"
	ItemModel    = "model"
	ItemDataDir  = "data_dir"
	ItemInputDir = "input_dir"
)

// ToolResolver locates already-installed artifacts without acquiring them.
type ToolResolver interface {
	ResolveEngine() (string, bool)
	ResolveFFmpeg() (string, bool)
	ResolveModel(spec domain.ModelSpec) (string, bool)
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	tools      ToolResolver
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(tools ToolResolver) *Checker {
	return &Checker{
		tools:      tools,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks for settings and the selected model.
func (c *Checker) Run(settings domain.Settings, model domain.ModelSpec) domain.DiagnosticReport {
	git := c.checkBuildTool("git")
	cmake := c.checkBuildTool("cmake")
	canBuild := git.Status == domain.DiagnosticStatusPass && cmake.Status == domain.DiagnosticStatusPass

	items := []domain.DiagnosticItem{
		c.checkFFmpeg(),
		c.checkEngine(canBuild),
		git,
		cmake,
		c.checkModel(model),
		c.checkWritableDir(ItemDataDir, "Data directory", settings.DataDir, true),
	}
	if strings.TrimSpace(settings.InputDir) != "" {
		items = append(items, c.checkWritableDir(ItemInputDir, "Input directory", settings.InputDir, false))
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkFFmpeg warns only: a static build is downloaded on first run.
func (c *Checker) checkFFmpeg() domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: ItemFFmpeg, Name: "ffmpeg"}
	if path, ok := c.tools.ResolveFFmpeg(); ok {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
		return item
	}
	item.Status = domain.DiagnosticStatusWarn
	item.Message = "ffmpeg not found on PATH or in the tools directory."
	item.Hint = "A static build is downloaded automatically on first run, or install ffmpeg yourself."
	return item
}

func (c *Checker) checkEngine(canBuild bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: ItemEngine, Name: "whisper.cpp"}
	if path, ok := c.tools.ResolveEngine(); ok {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
		return item
	}
	if canBuild {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "whisper.cpp binary not found."
		item.Hint = "It will be cloned and built on first run."
		return item
	}
	item.Status = domain.DiagnosticStatusFail
	item.Message = "whisper.cpp binary not found and it cannot be built."
	item.Hint = "Install git and cmake, or put whisper-cli on PATH."
	return item
}

// checkBuildTool verifies a CLI executable needed only to build the engine.
func (c *Checker) checkBuildTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusWarn,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Only needed to build whisper.cpp from source.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

func (c *Checker) checkModel(model domain.ModelSpec) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: ItemModel, Name: "Model " + model.ID}
	if strings.TrimSpace(model.ID) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No model selected."
		item.Hint = "Pick a model from the catalog or clear the pinned model id."
		return item
	}
	if path, ok := c.tools.ResolveModel(model); ok {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model file found: %s", path)
		return item
	}
	item.Status = domain.DiagnosticStatusWarn
	item.Message = fmt.Sprintf("Model %s is not downloaded yet (%s).", model.ID, model.SizeLabel)
	item.Hint = "It is downloaded automatically on first run."
	return item
}

// checkWritableDir validates directory existence and write access. When
// create is false a missing directory fails instead of being created.
func (c *Checker) checkWritableDir(id, name, dir string, create bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " is empty."
		item.Hint = "Set a directory in settings."
		return item
	}

	if create {
		if err := c.mkdirAll(dir, 0o755); err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
			item.Hint = "Choose a writable location or adjust filesystem permissions."
			return item
		}
	} else {
		info, err := c.stat(dir)
		if err != nil || !info.IsDir() {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Directory does not exist: %s", dir)
			item.Hint = "Pick an existing folder with media files."
			return item
		}
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Transcripts and caches are written here; adjust permissions."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	tools ToolResolver,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		tools:      tools,
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
