package pipeline

import (
	"path"
	"strings"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
)

// Keys derives output keys from input keys. Every derivation is a pure
// function of the input key basename and the stage, which is what makes
// overwrite-on-retry safe: reprocessing can never scatter output.
type Keys struct {
	Uploads    string
	Extraction string
	Enrichment string
}

// NewKeys builds the derivation table from the pipeline configuration.
func NewKeys(cfg common.PipelineConfig) Keys {
	return Keys{
		Uploads:    cfg.UploadsPrefix,
		Extraction: cfg.ExtractionPrefix,
		Enrichment: cfg.EnrichmentPrefix,
	}
}

// assetBase strips the prefix portion of an upload key.
func assetBase(assetKey string) string {
	return path.Base(assetKey)
}

// RawExtraction returns the key of the raw extraction artifact for an asset.
func (k Keys) RawExtraction(assetKey string) string {
	return k.Extraction + assetBase(assetKey) + constants.SuffixRawExtraction
}

// Summary returns the key of the summary artifact for an asset.
func (k Keys) Summary(assetKey string) string {
	return k.Extraction + assetBase(assetKey) + constants.SuffixSummary
}

// summaryBase recovers the asset basename from a summary key.
func summaryBase(summaryKey string) string {
	return strings.TrimSuffix(path.Base(summaryKey), constants.SuffixSummary)
}

// Narrative returns the key of the narrative artifact for a summary.
func (k Keys) Narrative(summaryKey string) string {
	return k.Enrichment + summaryBase(summaryKey) + constants.SuffixNarrative
}

// Enriched returns the key of the normalized enrichment artifact for a summary.
func (k Keys) Enriched(summaryKey string) string {
	return k.Enrichment + summaryBase(summaryKey) + constants.SuffixEnrichment
}

// IsUpload reports whether key is an upload-stage input. Output prefixes are
// excluded explicitly to guard against notification recursion.
func (k Keys) IsUpload(key string) bool {
	return strings.HasPrefix(key, k.Uploads) &&
		!strings.HasPrefix(key, k.Extraction) &&
		!strings.HasPrefix(key, k.Enrichment)
}

// IsSummary reports whether key is an enrichment-stage input.
func (k Keys) IsSummary(key string) bool {
	return strings.HasPrefix(key, k.Extraction) && strings.HasSuffix(key, constants.SuffixSummary)
}
