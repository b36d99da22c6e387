package selector

import "batch-transcriber/internal/domain"

// Thresholds maps a RAM bucket to the processing score needed before the
// full-precision variant of a tier is preferred over its reduced sibling.
type Thresholds map[string]int

// DefaultThresholds loosen as the RAM bucket grows.
func DefaultThresholds() Thresholds {
	return Thresholds{
		"32GB+": 12,
		"16GB":  18,
		"8GB":   24,
		"<8GB":  30,
	}
}

// Merge overlays configured cutoffs onto the defaults.
func (t Thresholds) Merge(overrides map[string]int) Thresholds {
	out := make(Thresholds, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func cpuResetFlags() []string {
	return []string{"-DGGML_CUDA=OFF", "-DGGML_METAL=OFF", "-DGGML_VULKAN=OFF"}
}

// CPUBackend is the all-accelerators-disabled build used as the fallback.
func CPUBackend() domain.EngineBackend {
	return domain.EngineBackend{Name: "cpu", CMakeFlags: cpuResetFlags()}
}

// SelectBackend maps the detected accelerator onto a build configuration.
func SelectBackend(profile domain.HardwareProfile) domain.EngineBackend {
	var enable string
	switch profile.Accelerator {
	case domain.AcceleratorCUDA:
		enable = "-DGGML_CUDA=ON"
	case domain.AcceleratorMetal:
		enable = "-DGGML_METAL=ON"
	case domain.AcceleratorVulkan:
		enable = "-DGGML_VULKAN=ON"
	default:
		return CPUBackend()
	}
	return domain.EngineBackend{
		Name:       string(profile.Accelerator),
		CMakeFlags: append(cpuResetFlags(), enable),
	}
}

// SelectModel picks the highest tier whose minimum RAM fits, choosing between
// a tier's reduced and full variants by the bucket's score threshold. When
// nothing fits it returns the smallest entry.
func SelectModel(profile domain.HardwareProfile, thresholds Thresholds) domain.ModelSpec {
	return selectFrom(catalog, profile, thresholds)
}

func selectFrom(entries []domain.ModelSpec, profile domain.HardwareProfile, thresholds Thresholds) domain.ModelSpec {
	if len(entries) == 0 {
		return domain.ModelSpec{}
	}
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}

	var best *domain.ModelSpec
	for i := range entries {
		e := &entries[i]
		if e.MinRAMGB > profile.RAMGB {
			continue
		}
		if best == nil || e.MinRAMGB > best.MinRAMGB {
			best = e
		}
	}
	if best == nil {
		smallest := entries[0]
		for _, e := range entries[1:] {
			if e.MinRAMGB < smallest.MinRAMGB {
				smallest = e
			}
		}
		return smallest
	}

	full, reduced, ok := tierPair(entries, best.Tier, profile.RAMGB)
	if !ok {
		return *best
	}
	cutoff, known := thresholds[profile.RAMBucket]
	if known && profile.ProcessingScore >= cutoff {
		return full
	}
	return reduced
}

// tierPair returns both variants of a tier when both fit in ramGB.
func tierPair(entries []domain.ModelSpec, tier, ramGB int) (full, reduced domain.ModelSpec, ok bool) {
	var haveFull, haveReduced bool
	for _, e := range entries {
		if e.Tier != tier || e.MinRAMGB > ramGB {
			continue
		}
		switch e.Variant {
		case domain.VariantFull:
			full, haveFull = e, true
		case domain.VariantReduced:
			reduced, haveReduced = e, true
		}
	}
	return full, reduced, haveFull && haveReduced
}
