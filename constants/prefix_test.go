package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSupportedAsset(t *testing.T) {
	assert.True(t, IsSupportedAsset("uploads/receipt.jpg"))
	assert.True(t, IsSupportedAsset("uploads/receipt.JPEG"))
	assert.True(t, IsSupportedAsset("uploads/scan.pdf"))
	assert.True(t, IsSupportedAsset("uploads/photo.png"))

	assert.False(t, IsSupportedAsset("uploads/notes.txt"))
	assert.False(t, IsSupportedAsset("uploads/archive.zip"))
	assert.False(t, IsSupportedAsset("uploads/noextension"))
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentTypeForKey("uploads/a.jpg"))
	assert.Equal(t, "image/jpeg", ContentTypeForKey("uploads/a.jpeg"))
	assert.Equal(t, "image/png", ContentTypeForKey("uploads/a.png"))
	assert.Equal(t, "application/pdf", ContentTypeForKey("uploads/a.pdf"))
	assert.Equal(t, "application/octet-stream", ContentTypeForKey("uploads/a.bin"))
}
