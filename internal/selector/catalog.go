// Package selector maps a hardware profile onto an engine backend and a
// model artifact. Every function here is pure.
package selector

import (
	"path/filepath"

	"batch-transcriber/internal/domain"
)

// ModelURLPrefix is where ggml model files are published.
const ModelURLPrefix = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// catalog is ordered from the smallest to the largest tier.
var catalog = []domain.ModelSpec{
	entry("tiny.en", "Tiny (English)", 0, domain.VariantFull, 1, "~75 MB", "Fastest, English-only model."),
	entry("base.en", "Base (English)", 1, domain.VariantFull, 2, "~142 MB", "Balanced speed/quality, English-only."),
	entry("small.en-q5_1", "Small (English, q5_1)", 2, domain.VariantReduced, 3, "~181 MB", "Quantized small model for tight memory."),
	entry("small.en", "Small (English)", 2, domain.VariantFull, 4, "~466 MB", "Higher quality, English-only."),
	entry("medium.en-q5_0", "Medium (English, q5_0)", 3, domain.VariantReduced, 6, "~514 MB", "Quantized medium model."),
	entry("medium.en", "Medium (English)", 3, domain.VariantFull, 8, "~1.5 GB", "High quality, English-only."),
	entry("large-v3-turbo-q5_0", "Large v3 Turbo (q5_0)", 4, domain.VariantReduced, 12, "~547 MB", "Quantized large-v3 turbo."),
	entry("large-v3-turbo", "Large v3 Turbo", 4, domain.VariantFull, 16, "~1.6 GB", "Faster large-v3 variant."),
}

func entry(id, name string, tier int, variant domain.ModelVariant, minRAM int, size, desc string) domain.ModelSpec {
	fileName := "ggml-" + id + ".bin"
	return domain.ModelSpec{
		ID:          id,
		Name:        name,
		Tier:        tier,
		Variant:     variant,
		MinRAMGB:    minRAM,
		FileName:    fileName,
		URL:         ModelURLPrefix + fileName,
		SizeLabel:   size,
		Description: desc,
	}
}

// Catalog returns a copy of the built-in model table.
func Catalog() []domain.ModelSpec {
	out := make([]domain.ModelSpec, len(catalog))
	copy(out, catalog)
	return out
}

// ModelByID looks up one catalog entry.
func ModelByID(id string) (domain.ModelSpec, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return domain.ModelSpec{}, false
}

// WithLocalPath returns spec with LocalPath set inside modelsDir.
func WithLocalPath(spec domain.ModelSpec, modelsDir string) domain.ModelSpec {
	spec.LocalPath = filepath.Join(modelsDir, spec.FileName)
	return spec
}
