package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/domain"
)

type fakeResolver struct {
	engine string
	ffmpeg string
	model  string
}

func (f fakeResolver) ResolveEngine() (string, bool) { return f.engine, f.engine != "" }
func (f fakeResolver) ResolveFFmpeg() (string, bool) { return f.ffmpeg, f.ffmpeg != "" }
func (f fakeResolver) ResolveModel(domain.ModelSpec) (string, bool) {
	return f.model, f.model != ""
}

func lookPathAll(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func lookPathNone(string) (string, error) { return "", errors.New("not found") }

func newTestChecker(tools ToolResolver, lookPath func(string) (string, error)) *Checker {
	return NewCheckerForTests(tools, lookPath, os.Stat, os.MkdirAll, os.CreateTemp, os.Remove)
}

var baseModel = domain.ModelSpec{ID: "base.en", FileName: "ggml-base.en.bin", SizeLabel: "142 MB"}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "media")
	require.NoError(t, os.MkdirAll(inputDir, 0o755))

	checker := newTestChecker(fakeResolver{
		engine: "/data/engine/whisper-cli",
		ffmpeg: "/usr/bin/ffmpeg",
		model:  "/data/models/ggml-base.en.bin",
	}, lookPathAll)

	report := checker.Run(domain.Settings{
		DataDir:  filepath.Join(root, "data"),
		InputDir: inputDir,
	}, baseModel)

	require.False(t, report.HasFailures, "items: %+v", report.Items)
	for _, item := range report.Items {
		assert.Equal(t, domain.DiagnosticStatusPass, item.Status, "item %s", item.ID)
	}
	assert.DirExists(t, filepath.Join(root, "data"))
}

// TestCheckerRunMissingArtifactsWarnWhenAcquirable validates first-run state.
func TestCheckerRunMissingArtifactsWarnWhenAcquirable(t *testing.T) {
	checker := newTestChecker(fakeResolver{}, lookPathAll)

	report := checker.Run(domain.Settings{DataDir: t.TempDir()}, baseModel)

	require.False(t, report.HasFailures, "items: %+v", report.Items)
	assertStatusByID(t, report, ItemFFmpeg, domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, ItemEngine, domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, ItemModel, domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, ItemGit, domain.DiagnosticStatusPass)
	assertStatusByID(t, report, ItemCMake, domain.DiagnosticStatusPass)
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := newTestChecker(fakeResolver{}, lookPathNone)

	report := checker.Run(domain.Settings{
		DataDir:  "",
		InputDir: filepath.Join(t.TempDir(), "missing"),
	}, domain.ModelSpec{})

	require.True(t, report.HasFailures)

	assertStatusByID(t, report, ItemFFmpeg, domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, ItemEngine, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemGit, domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, ItemCMake, domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, ItemModel, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemDataDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemInputDir, domain.DiagnosticStatusFail)
}

// TestCheckerRunEngineBuildableNeedsBothTools validates the git/cmake gate.
func TestCheckerRunEngineBuildableNeedsBothTools(t *testing.T) {
	onlyGit := func(name string) (string, error) {
		if name == "git" {
			return "/usr/bin/git", nil
		}
		return "", errors.New("not found")
	}
	checker := newTestChecker(fakeResolver{}, onlyGit)

	report := checker.Run(domain.Settings{DataDir: t.TempDir()}, baseModel)

	assertStatusByID(t, report, ItemEngine, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemCMake, domain.DiagnosticStatusWarn)
}

// TestCheckerRunInputDirIsFileFails validates input directory check.
func TestCheckerRunInputDirIsFileFails(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "clip.mp3")
	require.NoError(t, os.WriteFile(file, []byte("audio"), 0o644))

	checker := newTestChecker(fakeResolver{}, lookPathAll)
	report := checker.Run(domain.Settings{DataDir: root, InputDir: file}, baseModel)

	assertStatusByID(t, report, ItemInputDir, domain.DiagnosticStatusFail)
}

// TestCheckerRunUnwritableDataDirFails validates write probe handling.
func TestCheckerRunUnwritableDataDirFails(t *testing.T) {
	checker := NewCheckerForTests(
		fakeResolver{},
		lookPathAll,
		os.Stat,
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, os.ErrPermission },
		os.Remove,
	)

	report := checker.Run(domain.Settings{DataDir: "/readonly"}, baseModel)

	assertStatusByID(t, report, ItemDataDir, domain.DiagnosticStatusFail)
	assert.True(t, report.HasFailures)
}

// TestCheckerRunOmitsInputDirWhenUnset validates optional input check.
func TestCheckerRunOmitsInputDirWhenUnset(t *testing.T) {
	checker := newTestChecker(fakeResolver{}, lookPathAll)
	report := checker.Run(domain.Settings{DataDir: t.TempDir()}, baseModel)

	for _, item := range report.Items {
		assert.NotEqual(t, ItemInputDir, item.ID, "input dir item should be omitted")
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			assert.Equal(t, want, item.Status, "item %s", id)
			return
		}
	}
	require.Failf(t, "diagnostic item not found", "id %s", id)
}
