package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKnownSubstrings(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   RequestKind
		code   string
		status int
	}{
		{"processing", errors.New("The uploader is processing this video"), KindOnDemand, CodeVideoProcessing, http.StatusServiceUnavailable},
		{"private", errors.New("ERROR: Private video. Sign in if you've been granted access"), KindOnDemand, CodeVideoPrivate, http.StatusForbidden},
		{"unavailable on-demand", errors.New("Video unavailable"), KindOnDemand, CodeVideoUnavailable, http.StatusNotFound},
		{"unavailable live", errors.New("This stream is unavailable"), KindLive, CodeLiveUnavailable, http.StatusNotFound},
		{"no stream url", errors.New("stream URL not found for vid1"), KindLive, CodeStreamURLNotFound, http.StatusNotFound},
		{"no formats", errors.New("no video formats found"), KindOnDemand, CodeFormatNotSupported, http.StatusBadRequest},
		{"requested format", errors.New("Requested format is not available"), KindOnDemand, CodeFormatNotSupported, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := Classify(tt.err, tt.kind)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.status, se.Status)
		})
	}
}

func TestClassifyFallbackByKind(t *testing.T) {
	se := Classify(errors.New("something exploded"), KindOnDemand)
	assert.Equal(t, CodeVideoError, se.Code)
	assert.Equal(t, http.StatusInternalServerError, se.Status)

	se = Classify(errors.New("something exploded"), KindLive)
	assert.Equal(t, CodeStreamError, se.Code)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestClassifyTruncatesDiagnostics(t *testing.T) {
	noisy := errors.New(strings.Repeat("x", 500))
	se := Classify(noisy, KindOnDemand)
	assert.LessOrEqual(t, len(se.Message), 100)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// 3-byte runes that do not line up with the byte bound
	msg := strings.Repeat("配", 50)
	out := Truncate(msg)

	assert.LessOrEqual(t, len(out), 100)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("配", 33), out)

	assert.Equal(t, "short", Truncate("short"))
}

func TestClassifyDeadline(t *testing.T) {
	se := Classify(fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindOnDemand)
	assert.Equal(t, CodeUpstreamTimeout, se.Code)
	assert.Equal(t, http.StatusGatewayTimeout, se.Status)
}

func TestClassifyPassesThroughStreamError(t *testing.T) {
	orig := UpstreamHTTP(http.StatusNotFound)
	se := Classify(fmt.Errorf("wrapped: %w", orig), KindLive)
	require.Same(t, orig, se)
}

func TestUpstreamHelpers(t *testing.T) {
	se := UpstreamTimeout()
	assert.Equal(t, http.StatusGatewayTimeout, se.Status)
	assert.Equal(t, "Request timeout", se.Message)

	se = UpstreamHTTP(http.StatusForbidden)
	assert.Equal(t, CodeUpstreamHTTPError, se.Code)
	assert.Equal(t, http.StatusForbidden, se.Status)
	// the upstream body is withheld
	assert.Equal(t, "HTTP error", se.Message)
}
