package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	policy := NewCORSPolicy([]string{"https://app.example"})
	handler := CORS(policy, okHandler)

	req := httptest.NewRequest("GET", "/search?q=x", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	policy := NewCORSPolicy([]string{"https://app.example"})
	handler := CORS(policy, okHandler)

	req := httptest.NewRequest("GET", "/search?q=x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	policy := NewCORSPolicy([]string{"*"})
	handler := CORS(policy, okHandler)

	req := httptest.NewRequest("GET", "/search?q=x", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	policy := NewCORSPolicy([]string{"https://app.example"})
	handler := CORS(policy, okHandler)

	req := httptest.NewRequest("OPTIONS", "/search", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestCORSNoOriginPassesThrough(t *testing.T) {
	policy := NewCORSPolicy(nil)
	handler := CORS(policy, okHandler)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/search?q=x", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNormalizeOrigin(t *testing.T) {
	assert.Equal(t, "https://app.example", normalizeOrigin(" https://App.Example/ "))
}
