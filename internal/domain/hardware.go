package domain

import "fmt"

// Accelerator is the compute device family detected on the host.
type Accelerator string

const (
	AcceleratorNone   Accelerator = "cpu"
	AcceleratorCUDA   Accelerator = "cuda"
	AcceleratorMetal  Accelerator = "metal"
	AcceleratorVulkan Accelerator = "vulkan"
)

// HardwareProfile is the immutable host description computed once per process.
type HardwareProfile struct {
	OS              string      `json:"os"`
	Arch            string      `json:"arch"`
	RAMGB           int         `json:"ramGb"`
	CPUCores        int         `json:"cpuCores"`
	Accelerator     Accelerator `json:"accelerator"`
	RAMBucket       string      `json:"ramBucket"`
	ProcessingScore int         `json:"processingScore"`
}

// Summary renders the profile as a single status line.
func (p HardwareProfile) Summary() string {
	return fmt.Sprintf(
		"OS: %s | Arch: %s | RAM: %dGB | CPU: %d cores | Accelerator: %s",
		p.OS, p.Arch, p.RAMGB, p.CPUCores, p.Accelerator,
	)
}

// EngineBackend is the compute path the engine is built and run against.
type EngineBackend struct {
	Name       string   `json:"name"`
	CMakeFlags []string `json:"cmakeFlags"`
}
