package model

import "github.com/neillmiller2/Verbatim/internal/domain"

// modelCatalog lists the local AI models onboarding can install: the single
// transcription model and the summarization presets.
var modelCatalog = []domain.ModelOption{
	{
		ID:          "parakeet-tdt-0.6b-v3-int8",
		Kind:        domain.ModelTranscription,
		Name:        "Parakeet TDT 0.6B v3 (int8)",
		FileName:    "parakeet-tdt-0.6b-v3-int8.onnx",
		URL:         "https://huggingface.co/istupakov/parakeet-tdt-0.6b-v3-onnx/resolve/main/encoder-model.int8.onnx",
		SizeLabel:   "~660 MB",
		Description: "Quantized speech-to-text model used for meeting transcription.",
	},
	{
		ID:          "gemma3:1b",
		Kind:        domain.ModelSummary,
		Name:        "Gemma 3 1B",
		FileName:    "gemma-3-1b-it-Q4_K_M.gguf",
		URL:         "https://huggingface.co/ggml-org/gemma-3-1b-it-GGUF/resolve/main/gemma-3-1b-it-Q4_K_M.gguf",
		SizeLabel:   "~800 MB",
		Description: "Small summarization model for machines with limited memory.",
	},
	{
		ID:          "gemma3:4b",
		Kind:        domain.ModelSummary,
		Name:        "Gemma 3 4B",
		FileName:    "gemma-3-4b-it-Q4_K_M.gguf",
		URL:         "https://huggingface.co/ggml-org/gemma-3-4b-it-GGUF/resolve/main/gemma-3-4b-it-Q4_K_M.gguf",
		SizeLabel:   "~2.5 GB",
		Description: "Higher quality summarization model for capable machines.",
	},
}

// Catalog returns a copy of the built-in model presets.
func Catalog() []domain.ModelOption {
	models := make([]domain.ModelOption, len(modelCatalog))
	copy(models, modelCatalog)
	return models
}

// ModelByID looks up one catalog entry.
func ModelByID(id string) (domain.ModelOption, bool) {
	for _, option := range modelCatalog {
		if option.ID == id {
			return option, true
		}
	}
	return domain.ModelOption{}, false
}

// TranscriptionModel returns the single required speech-to-text model.
func TranscriptionModel() domain.ModelOption {
	for _, option := range modelCatalog {
		if option.Kind == domain.ModelTranscription {
			return option
		}
	}
	return domain.ModelOption{}
}

// SummaryModels returns the summarization presets in catalog order.
func SummaryModels() []domain.ModelOption {
	options := make([]domain.ModelOption, 0, len(modelCatalog))
	for _, option := range modelCatalog {
		if option.Kind == domain.ModelSummary {
			options = append(options, option)
		}
	}
	return options
}
