package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGzipCompressesWhenAccepted(t *testing.T) {
	handler := Gzip(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:4.0,\nseg0.ts\n"))
	})

	req := httptest.NewRequest("GET", "/live/x", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer gr.Close()
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n#EXTINF:4.0,\nseg0.ts\n", string(body))
}

func TestGzipPassthroughWithoutAcceptEncoding(t *testing.T) {
	handler := Gzip(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain"))
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/live/x", nil))

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "plain", rec.Body.String())
}
