package pipeline

import (
	"encoding/json"
	"time"
)

// Quality flags stamped into extraction artifacts so poor scans stay
// auditable instead of disappearing.
const (
	QualityOK            = "ok"
	QualityLowConfidence = "low_confidence"
)

// LineItem is one purchased item in a stored record. Monetary fields are
// decimal strings exactly as extracted.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// ExtractionRecord is the raw extraction artifact, the durable source of
// truth for the extraction stage. ProviderPayload is the capability's
// verbatim response, retained indefinitely for audit; the cleaned fields can
// be regenerated from it at any time.
type ExtractionRecord struct {
	SchemaVersion   string          `json:"schema_version"`
	Source          string          `json:"source"` // asset key this record was derived from
	Vendor          string          `json:"vendor,omitempty"`
	Date            string          `json:"date,omitempty"`
	Total           string          `json:"total,omitempty"`
	Items           []LineItem      `json:"items"`
	Quality         string          `json:"quality"`
	ProviderPayload json.RawMessage `json:"provider_payload,omitempty"`
	ExtractedAt     time.Time       `json:"extracted_at"`
}

// SummaryRecord is the minimal projection of an ExtractionRecord that feeds
// the enrichment stage. Its creation event is the enrichment trigger, so the
// schema version tag is load-bearing: the enrichment stage refuses versions
// it was not built for.
type SummaryRecord struct {
	SchemaVersion string     `json:"schema_version"`
	Source        string     `json:"source"`
	Vendor        string     `json:"vendor,omitempty"`
	Date          string     `json:"date,omitempty"`
	Total         string     `json:"total,omitempty"`
	Items         []LineItem `json:"items"`
	Quality       string     `json:"quality"`
}

// EnrichmentRecord is the terminal, analytics-ready artifact. Amount is a
// pointer so "model could not determine a number" survives serialization as
// null instead of 0.
type EnrichmentRecord struct {
	SchemaVersion    string    `json:"schema_version"`
	SourceSummaryKey string    `json:"source_summary_key"`
	Vendor           string    `json:"vendor"`
	Date             string    `json:"date"` // YYYY-MM-DD or ""
	Amount           *float64  `json:"amount"`
	Currency         string    `json:"currency"`
	Items            []string  `json:"items"`
	Category         string    `json:"category"`
	EnrichedAt       time.Time `json:"enriched_at"`
}
