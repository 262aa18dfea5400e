package gemini

// extractionPrompt instructs the vision model to behave like a structured
// expense-analysis capability: strict JSON, no commentary.
const extractionPrompt = `You are an expense document analyzer. Examine this receipt and return ONLY a JSON object (no markdown, no trailing text) with these keys:
- "vendor": merchant or store name as printed (string, "" if unreadable)
- "date": purchase date as printed (string, "" if absent)
- "total": final total amount as printed, including any currency symbol (string, "" if absent)
- "items": array of line items, each {"description": string, "quantity": string, "unit_price": string, "amount": string}; use "" for fields the receipt does not show

Transcribe values exactly as printed. Do not invent line items. If the image is not a receipt, return the JSON with all fields empty.`
