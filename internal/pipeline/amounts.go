package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

	// Fallback patterns applied to the raw provider payload when the
	// structured fields come back empty.
	totalFallbackRe = regexp.MustCompile(`[₹$€]\s?\d{1,3}(?:[,\d]*)(?:\.\d{2})?`)
	dateFallbackRe  = regexp.MustCompile(`\b\d{1,2}[/\-\s]\d{1,2}[/\-\s]\d{2,4}\b`)
)

// ParseAmount extracts a numeric amount from a printed money string
// ("₹1,234.50", "$ 12.00"). Returns nil when no number is present.
func ParseAmount(s string) *float64 {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	for _, sym := range []string{"₹", "$", "€"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	m := numberRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// DetectCurrency guesses an ISO 4217 code from symbols or abbreviations in
// a printed amount. Returns "" when nothing recognizable appears.
func DetectCurrency(s string) string {
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "₹") || strings.Contains(s, "INR") || strings.Contains(s, "Rs"):
		return "INR"
	case strings.Contains(s, "$"):
		return "USD"
	case strings.Contains(s, "€"):
		return "EUR"
	default:
		return ""
	}
}

// fallbackTotal scans the raw payload for anything shaped like a money
// amount with a currency symbol.
func fallbackTotal(raw []byte) string {
	return totalFallbackRe.FindString(string(raw))
}

// fallbackDate scans the raw payload for anything shaped like a date.
func fallbackDate(raw []byte) string {
	return dateFallbackRe.FindString(string(raw))
}
