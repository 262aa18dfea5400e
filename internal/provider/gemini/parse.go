package gemini

import (
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// jsonSeparator is the marker the generation prompt asks the model to place
// between the narrative line and the normalized JSON document.
const jsonSeparator = "===JSON==="

// responseText flattens the first candidate's text parts.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// stripFences removes a leading markdown code fence, which models add
// despite being told not to.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// sliceJSONObject returns the outermost {...} span of text, or "" when no
// object is present.
func sliceJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

// splitNarrativeJSON separates "<narrative>\n===JSON===\n{...}". A missing
// separator or missing object yields empty JSON; the enrichment stage treats
// that as a failed attempt.
func splitNarrativeJSON(text string) (string, []byte) {
	narrative := text
	jsonPart := ""
	if idx := strings.Index(text, jsonSeparator); idx >= 0 {
		narrative = strings.TrimSpace(text[:idx])
		jsonPart = text[idx+len(jsonSeparator):]
	}
	obj := sliceJSONObject(stripFences(jsonPart))
	if obj == "" {
		// Fall back to any object in the full response before giving up.
		obj = sliceJSONObject(stripFences(text))
		if obj != "" && !strings.Contains(text, jsonSeparator) {
			// No separator: everything before the object is the narrative.
			if cut := strings.Index(text, "{"); cut > 0 {
				narrative = strings.TrimSpace(stripFences(text[:cut]))
			}
		}
	}
	if obj == "" {
		return narrative, nil
	}
	return narrative, []byte(obj)
}
