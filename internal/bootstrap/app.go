package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/jobs"
	"batch-transcriber/internal/pipeline"
	"batch-transcriber/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// App wires the batch service to the Wails runtime and bound UI methods.
type App struct {
	service *batch.Service
	assets  fs.FS
	events  *jobs.EventBus

	mu          sync.Mutex
	diagnostics domain.DiagnosticReport
	running     bool
	cancel      context.CancelFunc
	lastSummary pipeline.Summary
	runtimeCtx  context.Context
}

// RunSnapshot is the polled view of the latest batch run.
type RunSnapshot struct {
	RunID     string            `json:"runId"`
	Running   bool              `json:"running"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	Items     []domain.WorkItem `json:"items"`
	Summary   pipeline.Summary  `json:"summary"`
}

// ModelCatalog lists catalog entries and the id the current settings select.
type ModelCatalog struct {
	Models   []domain.ModelSpec `json:"models"`
	Selected string             `json:"selected"`
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	service, err := batch.Open(batch.Options{})
	if err != nil {
		return nil, err
	}
	app := newApp(service, assets)
	if _, err := app.RefreshDiagnostics(); err != nil {
		service.Logger.Warn("startup diagnostics", "error", err)
	}
	return app, nil
}

func newApp(service *batch.Service, assets fs.FS) *App {
	return &App{
		service: service,
		assets:  assets,
		events:  jobs.NewEventBus(1000),
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	defer a.service.Close()

	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Batch Transcriber",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			_ = a.CancelBatch()
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetSettings returns settings with environment overrides applied.
func (a *App) GetSettings() (domain.Settings, error) {
	return a.service.Settings()
}

// SaveSettings validates and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	saved, err := a.service.SaveSettings(settings)
	if err != nil {
		return domain.Settings{}, err
	}
	a.setDiagnostics(a.service.Diagnose(saved))
	return saved, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.service.Settings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	report := a.service.Diagnose(settings)
	a.setDiagnostics(report)
	return report, nil
}

// InstallOrFixDiagnostic runs the remediation for one diagnostic item and
// returns the refreshed report. Bootstrap progress is pushed as events.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	settings, err := a.service.Settings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}

	fixErr := a.service.Fix(context.Background(), itemID, settings, a.bootstrapProgress(""))
	report := a.service.Diagnose(settings)
	a.setDiagnostics(report)
	if fixErr != nil {
		return report, fmt.Errorf("fix %s: %w", itemID, fixErr)
	}
	return report, nil
}

// GetHardwareProfile returns the detected host profile.
func (a *App) GetHardwareProfile() domain.HardwareProfile {
	return a.service.Profile()
}

// GetHardwareSummary returns the one-line host description.
func (a *App) GetHardwareSummary() string {
	return a.service.Profile().Summary()
}

// GetModels lists the model catalog with downloaded flags.
func (a *App) GetModels() (ModelCatalog, error) {
	settings, err := a.service.Settings()
	if err != nil {
		return ModelCatalog{}, err
	}
	models, selected := a.service.Models(settings)
	return ModelCatalog{Models: models, Selected: selected}, nil
}

// DownloadModel downloads one catalog model and pins it in settings.
func (a *App) DownloadModel(modelID string) (domain.Settings, error) {
	spec, err := a.service.DownloadModel(context.Background(), modelID, a.bootstrapProgress(""))
	if err != nil {
		return domain.Settings{}, fmt.Errorf("download model: %w", err)
	}
	settings, err := a.service.PinModel(spec.ID)
	if err != nil {
		return domain.Settings{}, err
	}
	a.setDiagnostics(a.service.Diagnose(settings))
	return settings, nil
}

// PinModel selects a catalog model; an empty id restores hardware selection.
func (a *App) PinModel(modelID string) (domain.Settings, error) {
	return a.service.PinModel(modelID)
}

// PickInputDirectory opens a native directory picker for the media folder.
func (a *App) PickInputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select folder with audio or video files",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or the configured input dir) in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		settings, err := a.service.Settings()
		if err != nil {
			return err
		}
		target = settings.InputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartBatch transcribes every pending file under inputDir in the
// background. An empty inputDir uses the configured input directory.
func (a *App) StartBatch(inputDir string) error {
	settings, err := a.service.Settings()
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return jobs.ErrRunAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.running = true
	a.cancel = cancel
	a.mu.Unlock()

	go a.runBatch(ctx, cancel, settings, inputDir)
	return nil
}

// CancelBatch requests a cooperative stop of the running batch.
func (a *App) CancelBatch() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoActiveRun
	}

	if err := a.service.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoActiveRun) {
		return err
	}
	cancel()
	return nil
}

// CurrentRun returns the state of the latest run.
func (a *App) CurrentRun() RunSnapshot {
	a.mu.Lock()
	snapshot := RunSnapshot{Running: a.running, Summary: a.lastSummary}
	a.mu.Unlock()

	if tracker, ok := a.service.Jobs.Current(); ok {
		snapshot.RunID = tracker.RunID()
		snapshot.Completed, snapshot.Total = tracker.Progress()
		snapshot.Items = tracker.Items()
	}
	return snapshot
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runBatch executes one batch and maps its outcome to events.
func (a *App) runBatch(ctx context.Context, cancel context.CancelFunc, settings domain.Settings, inputDir string) {
	defer cancel()

	var runID string
	hooks := batch.Hooks{
		Started: func(tracker *jobs.Tracker) {
			runID = tracker.RunID()
			completed, total := tracker.Progress()
			a.publishEvent(jobs.Event{
				RunID:     runID,
				Type:      jobs.EventTypeStatus,
				Status:    domain.StatusQueued,
				Message:   "Batch started",
				Completed: completed,
				Total:     total,
			})
		},
		Progress: func(update jobs.Update) {
			a.publishEvent(jobs.Event{
				RunID:          update.RunID,
				Type:           jobs.EventTypeStatus,
				ItemID:         update.Item.ID,
				Status:         update.Item.Status,
				Message:        update.Item.Detail,
				SourcePath:     update.Item.SourcePath,
				TranscriptPath: update.Item.TranscriptPath,
				Completed:      update.Completed,
				Total:          update.Total,
			})
		},
		Command: func(itemID string, log transcribe.CommandLog) {
			a.publishEvent(jobs.Event{
				RunID:    runID,
				Type:     jobs.EventTypeLog,
				ItemID:   itemID,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stdout:   log.Stdout,
				Stderr:   log.Stderr,
			})
		},
	}
	hooks.Bootstrap = func(step string, status domain.ItemStatus, detail string) {
		a.bootstrapProgress(runID)(step, status, detail)
	}

	summary, err := a.service.Run(ctx, settings, inputDir, hooks)

	a.mu.Lock()
	a.running = false
	a.cancel = nil
	a.lastSummary = summary
	a.mu.Unlock()

	if err != nil {
		a.publishEvent(jobs.Event{
			RunID:   runID,
			Type:    jobs.EventTypeError,
			Status:  domain.StatusError,
			Message: err.Error(),
		})
		return
	}

	a.publishEvent(jobs.Event{
		RunID: summary.RunID,
		Type:  jobs.EventTypeResult,
		Message: fmt.Sprintf("%d done, %d skipped, %d failed, %d canceled",
			summary.Done, summary.Skipped, summary.Failed, summary.Canceled),
		Completed: summary.Total,
		Total:     summary.Total,
	})
}

// bootstrapProgress forwards toolchain steps as bootstrap events.
func (a *App) bootstrapProgress(runID string) func(step string, status domain.ItemStatus, detail string) {
	return func(step string, status domain.ItemStatus, detail string) {
		a.publishEvent(jobs.Event{
			RunID:   runID,
			Type:    jobs.EventTypeBootstrap,
			ItemID:  step,
			Status:  status,
			Message: detail,
		})
	}
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

func (a *App) setDiagnostics(report domain.DiagnosticReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diagnostics = report
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
