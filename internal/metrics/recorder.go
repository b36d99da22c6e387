// Package metrics provides Prometheus metrics for batch runs.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"batch-transcriber/internal/domain"
)

// FileName is the textfile-collector file written under <data>/metrics.
const FileName = "batch.prom"

// Recorder owns a private registry so several runs in one process, and
// tests, never collide on global registration.
type Recorder struct {
	registry *prometheus.Registry

	// Labels: command (binary base name), status (success, failed, canceled, start_failed)
	commandTotal *prometheus.CounterVec
	// Labels: command
	commandDuration *prometheus.HistogramVec
	// Labels: status (terminal item status)
	itemTotal *prometheus.CounterVec
	// Labels: step (tool.repo, tool.binary, tool.ffmpeg, model.default), status
	bootstrapTotal *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		commandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_command_executions_total",
				Help: "Total number of child process executions",
			},
			[]string{"command", "status"},
		),
		// Buckets: 0.1s up to 30 minutes; engine runs on long media are slow.
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batch_command_duration_seconds",
				Help:    "Duration of child process executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800},
			},
			[]string{"command"},
		),
		itemTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_items_total",
				Help: "Total number of work items by terminal status",
			},
			[]string{"status"},
		),
		bootstrapTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_bootstrap_steps_total",
				Help: "Total number of toolchain bootstrap step updates",
			},
			[]string{"step", "status"},
		),
	}
	r.registry.MustRegister(r.commandTotal, r.commandDuration, r.itemTotal, r.bootstrapTotal)
	return r
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveCommand records one finished child process.
func (r *Recorder) ObserveCommand(command, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	name := filepath.Base(command)
	r.commandTotal.WithLabelValues(name, status).Inc()
	if elapsed > 0 {
		r.commandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// ObserveItem records a work item reaching a terminal status.
func (r *Recorder) ObserveItem(status domain.ItemStatus) {
	if r == nil {
		return
	}
	r.itemTotal.WithLabelValues(string(status)).Inc()
}

// ObserveBootstrap records one toolchain step update.
func (r *Recorder) ObserveBootstrap(step, status string) {
	if r == nil {
		return
	}
	r.bootstrapTotal.WithLabelValues(step, status).Inc()
}

// Flush writes the current values to path in the Prometheus text format.
func (r *Recorder) Flush(path string) error {
	if r == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// DefaultPath is the metrics file under the app data root.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "metrics", FileName)
}
