package pipeline

import (
	"fmt"
	"strings"
)

// buildEnrichmentPrompt renders the summary for the generative capability.
// The contract: first a one-line summary, then the ===JSON=== marker, then
// ONLY a JSON object matching BuildEnrichmentJSONSchema.
func buildEnrichmentPrompt(summary SummaryRecord) string {
	var items strings.Builder
	if len(summary.Items) == 0 {
		items.WriteString("(none)")
	} else {
		for i, it := range summary.Items {
			if i > 0 {
				items.WriteString("\n")
			}
			items.WriteString("- ")
			items.WriteString(formatLineItem(it))
		}
	}

	return fmt.Sprintf(`You are an expert assistant that converts extracted receipt data into a friendly one-line summary and a normalized JSON object.
Here is the extracted data:

Vendor: %s
Total: %s
Date: %s
Items:
%s

Task:
1) Produce a one-line English summary (concise).
2) Produce ONLY valid JSON (no trailing text) with keys:
   - vendor (string),
   - date (ISO 8601 YYYY-MM-DD or empty string),
   - amount (number or null),
   - currency (3-letter code or empty string),
   - items (array of strings),
   - category (short string classification like 'Groceries','Transport','Auto','Dining','Other').

Return first the one-line summary, then on a new line write exactly:
===JSON===
and then the JSON only.`, summary.Vendor, summary.Total, summary.Date, items.String())
}

func formatLineItem(it LineItem) string {
	parts := make([]string, 0, 4)
	if it.Description != "" {
		parts = append(parts, it.Description)
	}
	if it.Quantity != "" {
		parts = append(parts, "qty "+it.Quantity)
	}
	if it.UnitPrice != "" {
		parts = append(parts, "@ "+it.UnitPrice)
	}
	if it.Amount != "" {
		parts = append(parts, it.Amount)
	}
	if len(parts) == 0 {
		return "(unreadable item)"
	}
	return strings.Join(parts, " | ")
}
