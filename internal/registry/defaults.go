package registry

import (
	"time"

	"multimodal-pipeline/pkg/models"
)

const (
	defaultMaxRetries = 3
	defaultTimeout    = 60 * time.Second
)

// DefaultEndpoints returns the built-in model backends.
func DefaultEndpoints() []models.Endpoint {
	return []models.Endpoint{
		{
			Name:           "qwen-3-72b",
			URL:            "http://qwen-3-72b:8000",
			Modality:       models.ModalityText,
			CostPerRequest: 0.001,
			MaxRetries:     defaultMaxRetries,
			Timeout:        defaultTimeout,
			HealthCheckURL: "http://qwen-3-72b:8000/health",
		},
		{
			Name:           "sdxl",
			URL:            "http://sdxl:8000",
			Modality:       models.ModalityImage,
			CostPerRequest: 0.05,
			MaxRetries:     defaultMaxRetries,
			Timeout:        defaultTimeout,
			HealthCheckURL: "http://sdxl:8000/health",
		},
		{
			Name:           "whisper",
			URL:            "http://whisper:8000",
			Modality:       models.ModalityAudio,
			CostPerRequest: 0.01,
			MaxRetries:     defaultMaxRetries,
			Timeout:        defaultTimeout,
			HealthCheckURL: "http://whisper:8000/health",
		},
		{
			Name:           "coqui",
			URL:            "http://coqui:8000",
			Modality:       models.ModalityAudio,
			CostPerRequest: 0.005,
			MaxRetries:     defaultMaxRetries,
			Timeout:        defaultTimeout,
			HealthCheckURL: "http://coqui:8000/health",
		},
	}
}

// DefaultWorkflows returns the built-in workflow definitions.
func DefaultWorkflows() []models.WorkflowDefinition {
	return []models.WorkflowDefinition{
		{
			Name: "text_to_image",
			Stages: []models.StageDescriptor{
				{Name: "text_enhancement", Endpoint: "qwen-3-72b", Purpose: models.PurposeEnhancePrompt},
				{Name: "image_generation", Endpoint: "sdxl", Purpose: models.PurposeGenerateImage},
			},
		},
		{
			Name: "speech_to_text_to_analysis",
			Stages: []models.StageDescriptor{
				{Name: "speech_to_text", Endpoint: "whisper", Purpose: models.PurposeTranscribe},
				{Name: "text_analysis", Endpoint: "qwen-3-72b", Purpose: models.PurposeAnalyzeContent},
			},
		},
		{
			Name: "text_to_speech",
			Stages: []models.StageDescriptor{
				{Name: "text_processing", Endpoint: "qwen-3-72b", Purpose: models.PurposeOptimizeForSpeech},
				{Name: "speech_synthesis", Endpoint: "coqui", Purpose: models.PurposeGenerateAudio},
			},
		},
		{
			Name: "multimodal_analysis",
			Stages: []models.StageDescriptor{
				{Name: "text_extraction", Endpoint: "qwen-3-72b", Purpose: models.PurposeExtractText},
				{Name: "content_analysis", Endpoint: "qwen-3-72b", Purpose: models.PurposeAnalyzeMeaning},
				{Name: "response_generation", Endpoint: "qwen-3-72b", Purpose: models.PurposeGenerateResponse},
			},
		},
		{
			Name: "image_description",
			Stages: []models.StageDescriptor{
				{Name: "image_analysis", Endpoint: "qwen-3-72b", Purpose: models.PurposeDescribeImage},
				{Name: "text_enhancement", Endpoint: "qwen-3-72b", Purpose: models.PurposeEnhanceDescription},
			},
		},
	}
}

// Default builds the registry and catalog from the built-in definitions.
func Default() (*Registry, *Catalog, error) {
	reg, err := NewRegistry(DefaultEndpoints())
	if err != nil {
		return nil, nil, err
	}
	cat, err := NewCatalog(DefaultWorkflows(), reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, cat, nil
}
