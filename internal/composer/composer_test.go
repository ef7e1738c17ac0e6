package composer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-pipeline/pkg/models"
)

func stage(name string, purpose models.Purpose) models.StageDescriptor {
	return models.StageDescriptor{Name: name, Endpoint: "qwen-3-72b", Purpose: purpose}
}

func result(name string, output models.Payload) models.StageResult {
	return models.StageResult{Stage: name, Output: output, Timestamp: time.Now()}
}

func TestCompose_CopiesAndAddsContext(t *testing.T) {
	original := models.Payload{"prompt": "a cat", "context": map[string]interface{}{"user": "given"}}
	prior := []models.StageResult{
		result("first", models.Payload{"text": "one"}),
		{Stage: "no_output"},
		result("second", models.Payload{"text": "two"}),
	}

	got := Compose(stage("third", "custom_purpose"), original, prior)

	ctx, ok := got["context"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "given", ctx["user"])
	assert.Equal(t, models.Payload{"text": "one"}, ctx["first"])
	assert.Equal(t, models.Payload{"text": "two"}, ctx["second"])
	assert.NotContains(t, ctx, "no_output")
	assert.Equal(t, "a cat", got["prompt"], "unknown purposes pass through")

	// inputs are left untouched
	assert.Equal(t, models.Payload{"prompt": "a cat", "context": map[string]interface{}{"user": "given"}}, original)
	assert.Len(t, prior[0].Output, 1)
}

func TestCompose_NoPriorResultsLeavesContextAlone(t *testing.T) {
	got := Compose(stage("s", models.PurposeProcessInput), models.Payload{"prompt": "hi"}, nil)
	assert.Equal(t, models.Payload{"prompt": "hi"}, got)
}

func TestCompose_Deterministic(t *testing.T) {
	original := models.Payload{"text": "hello"}
	prior := []models.StageResult{
		result("b_stage", models.Payload{"text": "b"}),
		result("a_stage", models.Payload{"text": "a"}),
	}
	st := stage("extract", models.PurposeExtractText)

	first := Compose(st, original, prior)
	second := Compose(st, original, prior)
	assert.Equal(t, first, second)

	prompt := first["prompt"].(string)
	assert.Less(t, strings.Index(prompt, "A_Stage"), strings.Index(prompt, "B_Stage"), "context entries are sorted by stage name")
	assert.Contains(t, prompt, "Content: hello")
	assert.Contains(t, prompt, "Key information:")
}

func TestCompose_PurposeRules(t *testing.T) {
	t.Run("enhance_prompt", func(t *testing.T) {
		got := Compose(stage("text_enhancement", models.PurposeEnhancePrompt), models.Payload{"prompt": "a cat"}, nil)
		assert.Equal(t, "image_generation", got["enhancement_type"])
		assert.Equal(t, "a cat", got["original_prompt"])
		assert.Contains(t, got["prompt"], "Original prompt: a cat")
	})

	t.Run("enhance_description", func(t *testing.T) {
		prior := []models.StageResult{result("image_analysis", models.Payload{"text": "a red barn"})}
		got := Compose(stage("text_enhancement", models.PurposeEnhanceDescription), models.Payload{}, prior)
		assert.Equal(t, "general", got["enhancement_type"])
		assert.Contains(t, got["prompt"], "Description: a red barn")
	})

	t.Run("generate_image uses the enhanced prompt", func(t *testing.T) {
		prior := []models.StageResult{result("text_enhancement", models.Payload{"text": `"a cat, enhanced"`, "enhanced_prompt": "a cat, enhanced"})}
		got := Compose(stage("image_generation", models.PurposeGenerateImage), models.Payload{"prompt": "a cat"}, prior)
		assert.Equal(t, "a cat, enhanced", got["prompt"])
		assert.Equal(t, "a cat", got["original_prompt"])
	})

	t.Run("generate_image without enhancement keeps the prompt", func(t *testing.T) {
		got := Compose(stage("image_generation", models.PurposeGenerateImage), models.Payload{"prompt": "a dog"}, nil)
		assert.Equal(t, "a dog", got["prompt"])
		assert.NotContains(t, got, "original_prompt")
	})

	t.Run("transcribe defaults language", func(t *testing.T) {
		got := Compose(stage("speech_to_text", models.PurposeTranscribe), models.Payload{"audio_data": "AAAA"}, nil)
		assert.Equal(t, "auto", got["language"])

		got = Compose(stage("speech_to_text", models.PurposeTranscribe), models.Payload{"audio_data": "AAAA", "language": "fr"}, nil)
		assert.Equal(t, "fr", got["language"])
	})

	t.Run("analyze_content prefers the transcription", func(t *testing.T) {
		prior := []models.StageResult{result("speech_to_text", models.Payload{"text": "hello world"})}
		got := Compose(stage("text_analysis", models.PurposeAnalyzeContent), models.Payload{"audio_data": "AAAA"}, prior)
		assert.Equal(t, "hello world", got["text"])
		assert.Contains(t, got["prompt"], "Text: hello world")
	})

	t.Run("optimize_for_speech", func(t *testing.T) {
		got := Compose(stage("text_processing", models.PurposeOptimizeForSpeech), models.Payload{"text": "hi there"}, nil)
		assert.Contains(t, got["prompt"], "Original text: hi there")
	})

	t.Run("generate_audio defaults and chains text", func(t *testing.T) {
		prior := []models.StageResult{result("text_processing", models.Payload{"text": "Hi there!"})}
		got := Compose(stage("speech_synthesis", models.PurposeGenerateAudio), models.Payload{"text": "hi there"}, prior)
		assert.Equal(t, "Hi there!", got["text"])
		assert.Equal(t, "hi there", got["original_text"])
		assert.Equal(t, "default", got["voice"])
		assert.Equal(t, "en", got["language"])

		got = Compose(stage("speech_synthesis", models.PurposeGenerateAudio), models.Payload{"text": "x", "voice": "alto", "language": "de"}, nil)
		assert.Equal(t, "alto", got["voice"])
		assert.Equal(t, "de", got["language"])
		assert.Equal(t, "x", got["text"])
	})

	t.Run("describe_image mentions provided image data", func(t *testing.T) {
		got := Compose(stage("image_analysis", models.PurposeDescribeImage), models.Payload{"image_data": "iVBOR"}, nil)
		assert.Contains(t, got["prompt"], "Image data is provided for analysis.")

		got = Compose(stage("image_analysis", models.PurposeDescribeImage), models.Payload{}, nil)
		assert.NotContains(t, got["prompt"], "Image data is provided")
	})
}

func TestAnnotate(t *testing.T) {
	t.Run("enhancement cleanup", func(t *testing.T) {
		st := models.StageDescriptor{Name: "text_enhancement", Purpose: models.PurposeEnhancePrompt}
		out := Annotate(st, models.Payload{"text": "  \"a cat, enhanced\"\n"})
		assert.Equal(t, "a cat, enhanced", out["enhanced_prompt"])
		meta := out["stage_metadata"].(map[string]interface{})
		assert.Equal(t, "text_enhancement", meta["stage_name"])
		assert.Equal(t, false, meta["critical"])
	})

	t.Run("image metadata", func(t *testing.T) {
		st := models.StageDescriptor{Name: "image_generation", Purpose: models.PurposeGenerateImage, Critical: true}
		out := Annotate(st, models.Payload{"image_data": "iVBOR", "width": 512, "height": 768})
		assert.Equal(t, "png", out["image_format"])
		assert.Equal(t, "512x768", out["image_size"])
	})

	t.Run("transcription word count", func(t *testing.T) {
		st := models.StageDescriptor{Name: "speech_to_text", Purpose: models.PurposeTranscribe}
		out := Annotate(st, models.Payload{"text": "the quick  brown fox"})
		assert.Equal(t, 4, out["word_count"])
	})

	t.Run("does not modify the input", func(t *testing.T) {
		in := models.Payload{"text": "x"}
		Annotate(models.StageDescriptor{Name: "s", Purpose: models.PurposeProcessInput}, in)
		assert.Equal(t, models.Payload{"text": "x"}, in)
	})
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Text_Extraction", titleCase("text_extraction"))
	assert.Equal(t, "Speech To Text", titleCase("speech to text"))
}
