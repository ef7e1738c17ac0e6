// Package composer builds the input payload for each pipeline stage and shapes
// the stage's output before it is recorded.
//
// Everything here is a pure function of its arguments: no I/O, and neither the
// original request payload nor prior results are modified.
package composer

import (
	"sort"
	"strings"

	"multimodal-pipeline/pkg/models"
)

// Field names shared with the model adapters.
const (
	FieldPrompt          = "prompt"
	FieldText            = "text"
	FieldLanguage        = "language"
	FieldVoice           = "voice"
	FieldAudioData       = "audio_data"
	FieldImageData       = "image_data"
	FieldContext         = "context"
	FieldEnhancementType = "enhancement_type"
	FieldEnhancedPrompt  = "enhanced_prompt"
)

// rule applies a purpose-specific transform to a freshly copied payload.
type rule func(in models.Payload, prior []models.StageResult)

var rules = map[models.Purpose]rule{
	models.PurposeEnhancePrompt:      enhancePrompt,
	models.PurposeEnhanceDescription: enhanceDescription,
	models.PurposeGenerateImage:      generateImage,
	models.PurposeTranscribe:         transcribe,
	models.PurposeAnalyzeContent:     analyzeContent,
	models.PurposeOptimizeForSpeech:  optimizeForSpeech,
	models.PurposeGenerateAudio:      generateAudio,
	models.PurposeExtractText:        extractText,
	models.PurposeDescribeImage:      describeImage,
}

// Compose returns the input for stage: a copy of original with every prior
// stage output placed under context[stageName], then transformed by the rule
// for the stage's purpose. Purposes without a rule pass through unchanged.
func Compose(stage models.StageDescriptor, original models.Payload, prior []models.StageResult) models.Payload {
	in := original.Clone()

	if ctx := mergeContext(original, prior); ctx != nil {
		in[FieldContext] = ctx
	}

	if apply, ok := rules[stage.Purpose]; ok {
		apply(in, prior)
	}
	return in
}

// mergeContext returns nil when there is nothing to add.
func mergeContext(original models.Payload, prior []models.StageResult) map[string]interface{} {
	var withOutput []models.StageResult
	for _, r := range prior {
		if r.Output != nil {
			withOutput = append(withOutput, r)
		}
	}
	if len(withOutput) == 0 {
		return nil
	}

	ctx := make(map[string]interface{})
	if existing, ok := original[FieldContext].(map[string]interface{}); ok {
		for k, v := range existing {
			ctx[k] = v
		}
	}
	for _, r := range withOutput {
		ctx[r.Stage] = r.Output
	}
	return ctx
}

func enhancePrompt(in models.Payload, _ []models.StageResult) {
	prompt, _ := in.String(FieldPrompt)
	in[FieldEnhancementType] = "image_generation"
	in["original_prompt"] = prompt
	in[FieldPrompt] = render(promptEnhancementTemplate, prompt)
}

func enhanceDescription(in models.Payload, prior []models.StageResult) {
	description := latestString(prior, FieldText)
	if description == "" {
		description, _ = in.String(FieldText)
	}
	in[FieldEnhancementType] = "general"
	in[FieldPrompt] = render(descriptionEnhancementTemplate, description)
}

func generateImage(in models.Payload, prior []models.StageResult) {
	if enhanced := latestString(prior, FieldEnhancedPrompt); enhanced != "" {
		if original, ok := in[FieldPrompt]; ok {
			in["original_prompt"] = original
		}
		in[FieldPrompt] = enhanced
	}
}

func transcribe(in models.Payload, _ []models.StageResult) {
	setDefault(in, FieldLanguage, "auto")
}

func analyzeContent(in models.Payload, prior []models.StageResult) {
	text := preferPrior(in, prior, FieldText)
	in[FieldPrompt] = render(contentAnalysisTemplate, text)
}

func optimizeForSpeech(in models.Payload, _ []models.StageResult) {
	text, _ := in.String(FieldText)
	in[FieldPrompt] = render(speechOptimizationTemplate, text)
}

func generateAudio(in models.Payload, prior []models.StageResult) {
	preferPrior(in, prior, FieldText)
	setDefault(in, FieldVoice, "default")
	setDefault(in, FieldLanguage, "en")
}

func extractText(in models.Payload, _ []models.StageResult) {
	var b strings.Builder
	b.WriteString("Extract and summarize the key information from this content:\n\n")

	ctx, _ := in[FieldContext].(map[string]interface{})
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(titleCase(k))
		b.WriteString(": ")
		b.WriteString(stringify(ctx[k]))
		b.WriteString("\n\n")
	}
	if text, ok := in.String(FieldText); ok && text != "" {
		b.WriteString("Content: ")
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	b.WriteString("\nKey information:")
	in[FieldPrompt] = b.String()
}

func describeImage(in models.Payload, _ []models.StageResult) {
	var b strings.Builder
	b.WriteString(imageDescriptionTemplate)
	if _, ok := in[FieldImageData]; ok {
		b.WriteString("Image data is provided for analysis.\n\n")
	}
	b.WriteString("Description:")
	in[FieldPrompt] = b.String()
}

// preferPrior replaces in[field] with the latest prior output for field, keeping
// the request's own value under original_<field>. It returns the value in use.
func preferPrior(in models.Payload, prior []models.StageResult, field string) string {
	current, _ := in.String(field)
	latest := latestString(prior, field)
	if latest == "" {
		return current
	}
	if _, ok := in[field]; ok {
		in["original_"+field] = in[field]
	}
	in[field] = latest
	return latest
}

// latestString returns the most recent non-empty string output for field.
func latestString(prior []models.StageResult, field string) string {
	for i := len(prior) - 1; i >= 0; i-- {
		if s, ok := prior[i].Output.String(field); ok && s != "" {
			return s
		}
	}
	return ""
}

func setDefault(in models.Payload, field string, value interface{}) {
	if v, ok := in[field]; !ok || v == nil || v == "" {
		in[field] = value
	}
}
