package constants

import (
	"path"
	"strings"
)

// Default key prefixes partitioning the object store by stage.
const (
	DefaultUploadsPrefix    = "uploads/"
	DefaultExtractionPrefix = "textract-output/"
	DefaultEnrichmentPrefix = "bedrock-output/"
)

// Artifact suffixes appended to the asset basename at each stage.
const (
	SuffixRawExtraction = ".textract.json"
	SuffixSummary       = ".summary.json"
	SuffixNarrative     = ".summary.txt"
	SuffixEnrichment    = ".bedrock.json"
)

// SummarySchemaVersion is the schema version stamped into every
// SummaryRecord. The enrichment stage accepts exactly this version.
const SummarySchemaVersion = "1"

// AllowedExtensions holds the upload extensions the extraction capability accepts.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsSupportedAsset reports whether the object key looks like a receipt
// upload the extraction capability can process.
func IsSupportedAsset(key string) bool {
	ext := NormalizeExt(path.Ext(key))
	_, ok := AllowedExtensions[ext]
	return ok
}

// ContentTypeForKey maps an upload key to the MIME type sent to the
// extraction capability.
func ContentTypeForKey(key string) string {
	switch NormalizeExt(path.Ext(key)) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
