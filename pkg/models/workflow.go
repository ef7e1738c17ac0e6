package models

// Purpose tags a stage with the job it does; the composer and the audio adapter
// dispatch on it.
type Purpose string

const (
	PurposeProcessInput       Purpose = "process_input"
	PurposeEnhancePrompt      Purpose = "enhance_prompt"
	PurposeGenerateImage      Purpose = "generate_image"
	PurposeTranscribe         Purpose = "transcribe"
	PurposeAnalyzeContent     Purpose = "analyze_content"
	PurposeOptimizeForSpeech  Purpose = "optimize_for_speech"
	PurposeGenerateAudio      Purpose = "generate_audio"
	PurposeExtractText        Purpose = "extract_text"
	PurposeAnalyzeMeaning     Purpose = "analyze_meaning"
	PurposeGenerateResponse   Purpose = "generate_response"
	PurposeDescribeImage      Purpose = "describe_image"
	PurposeEnhanceDescription Purpose = "enhance_description"
)

// StageDescriptor is one step of a workflow.
type StageDescriptor struct {
	Name     string  `json:"stage" yaml:"stage"`
	Endpoint string  `json:"model" yaml:"model"`
	Purpose  Purpose `json:"purpose" yaml:"purpose"`
	Critical bool    `json:"critical,omitempty" yaml:"critical,omitempty"`
}

// WorkflowDefinition is a named, ordered list of stages.
type WorkflowDefinition struct {
	Name   string            `json:"name" yaml:"name"`
	Stages []StageDescriptor `json:"stages" yaml:"stages"`
}

// StageNames returns the declared stage names in order.
func (w WorkflowDefinition) StageNames() []string {
	names := make([]string, len(w.Stages))
	for i, s := range w.Stages {
		names[i] = s.Name
	}
	return names
}
