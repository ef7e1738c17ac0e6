package composer

import (
	"fmt"
	"strings"

	"multimodal-pipeline/pkg/models"
)

// Annotate returns a copy of a backend's normalized output with stage metadata
// and purpose-specific derived fields added.
func Annotate(stage models.StageDescriptor, output models.Payload) models.Payload {
	out := output.Clone()
	out["stage_metadata"] = map[string]interface{}{
		"stage_name": stage.Name,
		"purpose":    string(stage.Purpose),
		"critical":   stage.Critical,
	}

	switch stage.Purpose {
	case models.PurposeEnhancePrompt:
		if text, ok := out.String(FieldText); ok {
			out[FieldEnhancedPrompt] = cleanPrompt(text)
		}
	case models.PurposeGenerateImage:
		if _, ok := out[FieldImageData]; ok {
			out["image_format"] = "png"
			out["image_size"] = fmt.Sprintf("%vx%v", valueOr(out["width"], 1024), valueOr(out["height"], 1024))
		}
	case models.PurposeTranscribe:
		if text, ok := out.String(FieldText); ok {
			out["word_count"] = len(strings.Fields(text))
		}
	}
	return out
}

// cleanPrompt trims whitespace and one pair of surrounding double quotes.
func cleanPrompt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return s
}

func valueOr(v interface{}, def interface{}) interface{} {
	if v == nil {
		return def
	}
	return v
}
