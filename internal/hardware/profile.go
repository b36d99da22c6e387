// Package hardware inspects the host once per process: OS, cores, RAM and
// which accelerator toolchain is reachable.
package hardware

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"batch-transcriber/internal/domain"
)

const (
	probeTimeout   = 5 * time.Second
	probeWaitDelay = 500 * time.Millisecond
	maxScoredCores = 24
	bytesPerGB     = 1024 * 1024 * 1024
)

// probeFunc runs a vendor tool and returns its combined output.
type probeFunc func(ctx context.Context, name string, args ...string) (string, error)

// Profiler detects the host profile on first use and caches it.
type Profiler struct {
	once    sync.Once
	profile domain.HardwareProfile

	goos        string
	goarch      string
	numCPU      func() int
	totalMemory func() (uint64, error)
	lookPath    func(string) (string, error)
	probe       probeFunc
	logger      *slog.Logger
}

// NewProfiler builds a profiler backed by the real OS.
func NewProfiler(logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiler{
		goos:        runtime.GOOS,
		goarch:      runtime.GOARCH,
		numCPU:      runtime.NumCPU,
		totalMemory: totalMemoryBytes,
		lookPath:    exec.LookPath,
		probe:       runProbe,
		logger:      logger,
	}
}

// Detect returns the memoized host profile. Probe failures are treated as
// "not present" and never surface as errors.
func (p *Profiler) Detect() domain.HardwareProfile {
	p.once.Do(func() {
		p.profile = p.detect()
		p.logger.Info("hardware profile detected",
			"os", p.profile.OS,
			"arch", p.profile.Arch,
			"ram_gb", p.profile.RAMGB,
			"cores", p.profile.CPUCores,
			"accelerator", p.profile.Accelerator,
			"ram_bucket", p.profile.RAMBucket,
			"score", p.profile.ProcessingScore,
		)
	})
	return p.profile
}

func (p *Profiler) detect() domain.HardwareProfile {
	cores := p.numCPU()
	if cores < 1 {
		cores = 1
	}
	ram := p.ramGB()
	acc := p.detectAccelerator()

	return domain.HardwareProfile{
		OS:              p.goos,
		Arch:            p.goarch,
		RAMGB:           ram,
		CPUCores:        cores,
		Accelerator:     acc,
		RAMBucket:       RAMBucket(ram),
		ProcessingScore: ProcessingScore(cores, acc, ram),
	}
}

// ramGB converts total memory to whole gigabytes, falling back to 1.
func (p *Profiler) ramGB() int {
	total, err := p.totalMemory()
	if err != nil {
		p.logger.Warn("total memory unreadable, assuming 1GB", "error", err)
		return 1
	}
	gb := int(total / bytesPerGB)
	if gb < 1 {
		return 1
	}
	return gb
}

// detectAccelerator checks CUDA, then the platform-native API, then Vulkan.
func (p *Profiler) detectAccelerator() domain.Accelerator {
	if p.hasCUDA() {
		return domain.AcceleratorCUDA
	}
	if p.goos == "darwin" {
		return domain.AcceleratorMetal
	}
	if (p.goos == "linux" || p.goos == "windows") && p.hasVulkan() {
		return domain.AcceleratorVulkan
	}
	return domain.AcceleratorNone
}

func (p *Profiler) hasCUDA() bool {
	if _, err := p.lookPath("nvidia-smi"); err != nil {
		return false
	}
	out, err := p.runProbe("nvidia-smi", "-L")
	if err != nil {
		return false
	}
	return strings.Contains(out, "GPU")
}

func (p *Profiler) hasVulkan() bool {
	if _, err := p.lookPath("vulkaninfo"); err != nil {
		return false
	}
	_, err := p.runProbe("vulkaninfo", "--summary")
	return err == nil
}

func (p *Profiler) runProbe(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := p.probe(ctx, name, args...)
	if err != nil {
		p.logger.Debug("hardware probe failed", "command", name, "error", err)
	}
	return out, err
}

// runProbe executes a probe command, bounded by the caller's context plus
// probeWaitDelay for any descendant still holding the output pipe.
func runProbe(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = probeWaitDelay
	err := cmd.Run()
	return out.String(), err
}

// RAMBucket maps gigabytes onto the coarse buckets used by model selection.
func RAMBucket(ramGB int) string {
	switch {
	case ramGB >= 32:
		return "32GB+"
	case ramGB >= 16:
		return "16GB"
	case ramGB >= 8:
		return "8GB"
	default:
		return "<8GB"
	}
}

// ProcessingScore combines capped core count, accelerator and RAM bonuses.
func ProcessingScore(cores int, acc domain.Accelerator, ramGB int) int {
	if cores < 1 {
		cores = 1
	}
	score := min(cores, maxScoredCores)

	switch acc {
	case domain.AcceleratorCUDA:
		score += 20
	case domain.AcceleratorMetal:
		score += 14
	case domain.AcceleratorVulkan:
		score += 10
	}

	switch {
	case ramGB >= 32:
		score += 8
	case ramGB >= 16:
		score += 4
	case ramGB >= 8:
		score += 2
	}
	return score
}

// NewProfilerForTests constructs a profiler with injectable host probes.
func NewProfilerForTests(
	goos string,
	goarch string,
	numCPU func() int,
	totalMemory func() (uint64, error),
	lookPath func(string) (string, error),
	probe func(ctx context.Context, name string, args ...string) (string, error),
) *Profiler {
	return &Profiler{
		goos:        goos,
		goarch:      goarch,
		numCPU:      numCPU,
		totalMemory: totalMemory,
		lookPath:    lookPath,
		probe:       probe,
		logger:      slog.Default(),
	}
}
