package pipeline

// BuildEnrichmentJSONSchema returns the JSON-Schema (draft 2020-12 subset)
// the generative capability's normalized output must satisfy before an
// EnrichmentRecord is committed. Kept as a generic map so the prompt and the
// validator share one definition.
func BuildEnrichmentJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor": map[string]any{"type": "string"},
			"date":   map[string]any{"type": "string", "pattern": `^(\d{4}-\d{2}-\d{2})?$`},
			"amount": map[string]any{"type": []string{"number", "null"}},
			"currency": map[string]any{
				"type":      "string",
				"maxLength": 3,
			},
			"items": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"category": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"vendor", "date", "amount", "currency", "items", "category"},
	}
}
