package classify

import "strings"

const (
	// tsSyncByte is the MPEG transport stream synchronization byte that begins
	// every 188-byte TS packet.
	tsSyncByte = 0x47

	// MediaTypeMPEGTS is the canonical transport-stream media type.
	MediaTypeMPEGTS = "video/MP2T"

	// MediaTypeHLS is the canonical HLS playlist media type.
	MediaTypeHLS = "application/vnd.apple.mpegurl"
)

// IsSegmentURL reports whether a URL looks like a transport-stream segment
// reference. The check is a hint only; the sync byte makes the final call.
func IsSegmentURL(url string) bool {
	return strings.Contains(url, ".ts")
}

// IsManifestURL reports whether a URL references an HLS playlist.
func IsManifestURL(url string) bool {
	trimmed := url
	if idx := strings.IndexAny(trimmed, "?#"); idx != -1 {
		trimmed = trimmed[:idx]
	}
	return strings.HasSuffix(trimmed, ".m3u8")
}

// IsManifestContentType reports whether a declared content type identifies an
// HLS playlist. Origins use several spellings (application/vnd.apple.mpegurl,
// application/x-mpegURL, audio/mpegurl), all containing "mpegurl".
func IsManifestContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "mpegurl")
}

// Classify corrects the declared media type of a fetched body. Upstream servers
// frequently mislabel transport-stream segments as application/octet-stream or
// text/plain; when the URL hints at a segment and the first byte is the TS sync
// byte, the declared type is overridden with the canonical transport-stream
// type. Anything else passes through unchanged.
func Classify(firstByte byte, declaredType, urlHint string) string {
	if IsSegmentURL(urlHint) && firstByte == tsSyncByte {
		return MediaTypeMPEGTS
	}
	return declaredType
}
