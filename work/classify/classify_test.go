package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyOverridesMislabeledSegment(t *testing.T) {
	got := Classify(0x47, "application/octet-stream", "https://cdn.example/seg0.ts")
	assert.Equal(t, MediaTypeMPEGTS, got)

	got = Classify(0x47, "text/plain", "https://cdn.example/chunk.ts?token=abc")
	assert.Equal(t, MediaTypeMPEGTS, got)
}

func TestClassifyKeepsDeclaredTypeWithoutSyncByte(t *testing.T) {
	got := Classify('<', "text/html", "https://cdn.example/seg0.ts")
	assert.Equal(t, "text/html", got)
}

func TestClassifyIgnoresNonSegmentURLs(t *testing.T) {
	// sync byte alone is not enough, the URL must hint at a segment
	got := Classify(0x47, "application/octet-stream", "https://cdn.example/blob")
	assert.Equal(t, "application/octet-stream", got)
}

func TestIsManifestURL(t *testing.T) {
	assert.True(t, IsManifestURL("https://origin.example/playlist.m3u8"))
	assert.True(t, IsManifestURL("https://origin.example/playlist.m3u8?token=abc"))
	assert.False(t, IsManifestURL("https://origin.example/seg0.ts"))
	assert.False(t, IsManifestURL("https://origin.example/playlist.m3u8.bak"))
}

func TestIsManifestContentType(t *testing.T) {
	assert.True(t, IsManifestContentType("application/vnd.apple.mpegurl"))
	assert.True(t, IsManifestContentType("application/x-mpegURL"))
	assert.True(t, IsManifestContentType("audio/mpegurl"))
	assert.False(t, IsManifestContentType("video/MP2T"))
	assert.False(t, IsManifestContentType(""))
}
