package composer

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

const promptEnhancementTemplate = `Enhance this image generation prompt to be more descriptive and detailed. Add artistic style, lighting, composition, and quality details.

Original prompt: %s

Enhanced prompt:`

const descriptionEnhancementTemplate = `Improve this image description so it reads naturally and covers subjects, setting, colors, composition, and mood. Keep every factual detail.

Description: %s

Improved description:`

const contentAnalysisTemplate = `Analyze this text content and provide insights on:
1. Main topics and themes
2. Sentiment and tone
3. Key entities and concepts
4. Intent and purpose

Text: %s

Analysis:`

const speechOptimizationTemplate = `Optimize this text for natural speech synthesis. Make it more conversational, add appropriate punctuation, and improve flow.

Original text: %s

Optimized text:`

const imageDescriptionTemplate = `Describe this image in detail. Include:
1. Main subjects and objects
2. Setting and environment
3. Colors and lighting
4. Composition and perspective
5. Mood and atmosphere

`

func render(template, value string) string {
	return fmt.Sprintf(template, value)
}

// titleCase upper-cases the first letter of every run of letters.
func titleCase(s string) string {
	out := []rune(s)
	start := true
	for i, r := range out {
		if unicode.IsLetter(r) {
			if start {
				out[i] = unicode.ToUpper(r)
			}
			start = false
		} else {
			start = true
		}
	}
	return string(out)
}

// stringify renders context values for inclusion in a prompt. Maps and slices
// are JSON encoded, which sorts map keys.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return string(data)
}
