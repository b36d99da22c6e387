package domain

// ModelVariant distinguishes full-precision weights from their quantized sibling.
type ModelVariant string

const (
	VariantFull    ModelVariant = "full"
	VariantReduced ModelVariant = "reduced"
)

// ModelSpec describes one whisper.cpp ggml model artifact.
type ModelSpec struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Tier        int          `json:"tier"`
	Variant     ModelVariant `json:"variant"`
	MinRAMGB    int          `json:"minRamGb"`
	FileName    string       `json:"fileName"`
	URL         string       `json:"url"`
	SizeLabel   string       `json:"sizeLabel,omitempty"`
	Description string       `json:"description,omitempty"`
	LocalPath   string       `json:"localPath,omitempty"`
	Downloaded  bool         `json:"downloaded"`
}
