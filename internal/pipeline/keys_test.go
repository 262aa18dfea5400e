package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
)

func testKeys() Keys {
	return NewKeys(common.PipelineConfig{
		UploadsPrefix:    "uploads/",
		ExtractionPrefix: "textract-output/",
		EnrichmentPrefix: "bedrock-output/",
	})
}

func TestKeyDerivation(t *testing.T) {
	k := testKeys()

	assert.Equal(t, "textract-output/receipt.jpg.textract.json", k.RawExtraction("uploads/receipt.jpg"))
	assert.Equal(t, "textract-output/receipt.jpg.summary.json", k.Summary("uploads/receipt.jpg"))
	assert.Equal(t, "bedrock-output/receipt.jpg.summary.txt", k.Narrative("textract-output/receipt.jpg.summary.json"))
	assert.Equal(t, "bedrock-output/receipt.jpg.bedrock.json", k.Enriched("textract-output/receipt.jpg.summary.json"))
}

func TestKeyDerivationIsDeterministic(t *testing.T) {
	k := testKeys()

	// Same input, same output, every time; nested upload paths collapse to
	// the basename the same way.
	for i := 0; i < 5; i++ {
		assert.Equal(t, k.RawExtraction("uploads/receipt.jpg"), k.RawExtraction("uploads/receipt.jpg"))
		assert.Equal(t, k.Summary("uploads/2024/receipt.jpg"), k.Summary("uploads/receipt.jpg"))
	}
}

func TestIsUpload(t *testing.T) {
	k := testKeys()

	assert.True(t, k.IsUpload("uploads/receipt.jpg"))
	assert.False(t, k.IsUpload("textract-output/receipt.jpg.summary.json"))
	assert.False(t, k.IsUpload("bedrock-output/receipt.jpg.bedrock.json"))
	assert.False(t, k.IsUpload("other/receipt.jpg"))
}

func TestIsSummary(t *testing.T) {
	k := testKeys()

	assert.True(t, k.IsSummary("textract-output/receipt.jpg.summary.json"))
	assert.False(t, k.IsSummary("textract-output/receipt.jpg.textract.json"))
	assert.False(t, k.IsSummary("uploads/receipt.jpg"))
	assert.False(t, k.IsSummary("bedrock-output/receipt.jpg.bedrock.json"))
}
